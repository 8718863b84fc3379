// Package cli holds the styled command-line output: help, version and errors.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Same teal and band colours as the dashboard.
var (
	teal = lipgloss.Color("#00C8A0")
	grey = lipgloss.Color("#888888")
	red  = lipgloss.Color("#E04040")
)

var (
	nameStyle    = lipgloss.NewStyle().Bold(true).Foreground(teal)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	termStyle    = lipgloss.NewStyle().Foreground(teal)
	noteStyle    = lipgloss.NewStyle().Foreground(grey)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(red)
)

// PrintVersion writes "soundscape <version>" to stdout.
func PrintVersion(version string) {
	fmt.Fprintln(os.Stdout, versionLine(version))
}

func versionLine(version string) string {
	return nameStyle.Render("soundscape") + " " + noteStyle.Render(version)
}

// PrintError writes message to stderr.
func PrintError(message string) {
	fmt.Fprintln(os.Stderr, failStyle.Render("soundscape:")+" "+message)
}
