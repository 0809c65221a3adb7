package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/tracersim/internal/params"
)

func headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Primary)
}

func labelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Width(14)
}

func valueStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Text)
}

func accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Accent)
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
}

func panelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Secondary).
		Padding(0, 1)
}

// ParamTable renders the fields of p in their display units. With
// optimizableOnly set, fixed fields are left out.
func ParamTable[T any](p *params.Params[T], optimizableOnly bool) string {
	rows := p.Display()
	nameW, valueW, unitW := len("name"), len("value"), len("unit")
	for _, r := range rows {
		nameW = max(nameW, lipgloss.Width(r.Name))
		valueW = max(valueW, lipgloss.Width(r.Value))
		unitW = max(unitW, lipgloss.Width(r.Unit))
	}
	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", max(0, w-lipgloss.Width(s)))
	}

	var b strings.Builder
	b.WriteString(headerStyle().Render(p.Schema().Name()))
	fmt.Fprintf(&b, " %s\n", mutedStyle().Render(fmt.Sprintf("(%d fields, %d optimizable)", p.NumFields(), p.Len())))
	b.WriteString(mutedStyle().Render(pad("name", nameW)+"  "+pad("value", valueW)+"  "+pad("unit", unitW)+"  description") + "\n")
	for _, r := range rows {
		if optimizableOnly && r.Fixed {
			continue
		}
		name := pad(r.Name, nameW)
		if r.Fixed {
			name = mutedStyle().Render(name)
		} else {
			name = accentStyle().Render(name)
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			name,
			valueStyle().Render(pad(r.Value, valueW)),
			pad(r.Unit, unitW),
			mutedStyle().Render(r.Description))
	}
	return panelStyle().Render(strings.TrimRight(b.String(), "\n"))
}

// ProgressBar renders a bar filled to fraction of width.
func ProgressBar(fraction float64, width int) string {
	filled := int(math.Round(math.Max(0, math.Min(1, fraction)) * float64(width)))
	return accentStyle().Render(strings.Repeat("█", filled)) + mutedStyle().Render(strings.Repeat("░", width-filled))
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders values as a one-line chart of at most width runes.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}
	step := max(len(values)/width, 1)

	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		norm := (values[i*step] - lo) / rng
		idx := int(norm * float64(len(sparkChars)-1))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}
