package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/soundscape/internal/life"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00C8A0"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	bassStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E04040"))
	midStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#40C040"))
	trebleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4080F0"))

	gridStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444"))
)

const meterWidth = 24

// renderDashboard lays out header, meters, rules and the grid preview.
func renderDashboard(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	f := m.frame
	if f == nil || f.Snapshot == nil {
		b.WriteString(mutedStyle.Render("waiting for audio..."))
		b.WriteString("\n")
		return b.String()
	}

	state := "playing"
	switch {
	case m.stopped:
		state = "stopped"
	case m.stopping:
		state = "stopping..."
	case f.Frozen:
		state = "frozen, reset and clear are off"
	case f.Finished:
		state = "finished"
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s  %s / %s", state, clock(f.Position), clock(f.Duration))))
	b.WriteString("\n\n")

	b.WriteString(meter("bass  ", f.Bands.Bass, bassStyle))
	b.WriteString("\n")
	b.WriteString(meter("mid   ", f.Bands.Mid, midStyle))
	b.WriteString("\n")
	b.WriteString(meter("treble", f.Bands.Treble, trebleStyle))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s\n", f.Rules)
	fmt.Fprintf(&b, "generation %d  population %d  peak %.0f Hz", f.Snapshot.Generation, f.Snapshot.Population(), f.PeakHz)
	if f.Dropped > 0 {
		fmt.Fprintf(&b, "  skipped %d", f.Dropped)
	}
	b.WriteString("\n")

	// Header and footer take 11 lines, the border 2 rows and 2 columns.
	cols := max(m.Width-2, 8)
	rows := max(m.Height-13, 4)
	b.WriteString(gridStyle.Render(renderGrid(f.Snapshot, cols, rows)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("r/space reset • c clear • q quit"))
	return b.String()
}

// meter renders a labelled horizontal bar for v in [0,1].
func meter(label string, v float64, style lipgloss.Style) string {
	filled := int(min(max(v, 0), 1)*meterWidth + 0.5)
	bar := style.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", meterWidth-filled))
	return fmt.Sprintf("%s %s %.2f", label, bar, v)
}

// renderGrid downsamples snap to at most cols x rows characters, two cells
// per character using half blocks.
func renderGrid(snap *life.Snapshot, cols, rows int) string {
	if snap == nil || snap.Width == 0 || snap.Height == 0 {
		return ""
	}
	cols = min(cols, snap.Width)
	rows = min(rows, (snap.Height+1)/2)
	sub := rows * 2

	alive := func(cx, sy int) bool {
		x := cx * snap.Width / cols
		y := sy * snap.Height / sub
		if y >= snap.Height {
			return false
		}
		return snap.Cells[y*snap.Width+x] != 0
	}

	var b strings.Builder
	for cy := range rows {
		if cy > 0 {
			b.WriteByte('\n')
		}
		for cx := range cols {
			top, bottom := alive(cx, cy*2), alive(cx, cy*2+1)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
