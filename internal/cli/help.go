package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// row is one line of a help section: a term and its description.
type row struct {
	term, desc string
}

// controls mirrors the window's key table.
var controls = []row{
	{"space", "re-seed the grid"},
	{"c", "clear the grid"},
	{"1-4", "classic, heat, rainbow, pulse colours"},
	{"tab", "next colour scheme"},
	{"h", "toggle the overlay"},
	{"esc, f11", "toggle fullscreen"},
	{"q", "quit"},
}

// HelpPrinter is a kong.HelpPrinter that lays the model out as aligned
// two-column sections, followed by the window's key bindings.
func HelpPrinter(_ kong.HelpOptions, ctx *kong.Context) error {
	app := ctx.Model
	w := ctx.Stdout

	fmt.Fprintf(w, "%s  %s\n", nameStyle.Render(app.Name), noteStyle.Render(app.Help))

	usage := app.Name + " [flags]"
	var args []row
	for _, a := range app.Node.Positional {
		usage += " " + a.Summary()
		args = append(args, row{a.Summary(), a.Help})
	}
	writeSection(w, "usage", []row{{usage, ""}})
	writeSection(w, "arguments", args)
	writeSection(w, "flags", flagRows(app.Node.Flags))
	writeSection(w, "keys", controls)
	fmt.Fprintln(w)
	return nil
}

func flagRows(flags []*kong.Flag) []row {
	var rows []row
	for _, f := range flags {
		if f.Hidden {
			continue
		}
		term := "    --" + f.Name
		if f.Short != 0 {
			term = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
		}
		if !f.IsBool() {
			term += "=" + strings.ToUpper(f.Name)
		}
		desc := f.Help
		if f.HasDefault && f.Default != "" {
			desc += " " + noteStyle.Render("["+f.Default+"]")
		}
		rows = append(rows, row{term, desc})
	}
	return rows
}

// writeSection prints a heading and its rows with the descriptions lined up.
// Empty sections print nothing.
func writeSection(w io.Writer, heading string, rows []row) {
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.term))
	}
	fmt.Fprintf(w, "\n%s\n", headingStyle.Render(heading))
	for _, r := range rows {
		if r.desc == "" {
			fmt.Fprintf(w, "  %s\n", termStyle.Render(r.term))
			continue
		}
		pad := strings.Repeat(" ", width-lipgloss.Width(r.term))
		fmt.Fprintf(w, "  %s%s   %s\n", termStyle.Render(r.term), pad, r.desc)
	}
}
