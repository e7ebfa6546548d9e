// Package render draws simulation progress on a terminal: a framed status
// block per step and a one-line summary when the run ends.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Theme defines the color scheme for the console.
type Theme struct {
	Primary lipgloss.Color // Borders and titles
	Value   lipgloss.Color // Field values
	Dim     lipgloss.Color // Help and status text
	Warn    lipgloss.Color // Stale steps
}

// DefaultTheme is the default cyan theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00d7ff"),
	Value:   lipgloss.Color("#ffffff"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffaf00"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
}

// NewStyles creates styles from a theme. The renderer decides the color
// profile; a renderer over a non-terminal writer emits plain text.
func NewStyles(r *lipgloss.Renderer, t Theme) Styles {
	return Styles{
		Title:  r.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  r.NewStyle().Foreground(t.Primary),
		Value:  r.NewStyle().Foreground(t.Value),
		Border: r.NewStyle().Foreground(t.Primary),
		Help:   r.NewStyle().Foreground(t.Dim),
		Warn:   r.NewStyle().Bold(true).Foreground(t.Warn),
	}
}

// Field is one label/value row.
type Field struct {
	Label string
	Value string
	Warn  bool
}

// Section represents a labeled section with content.
type Section struct {
	Label   string
	Content func() []string // Dynamic content getter
}

// Frame renders a boxed block with a title, fields and optional sections.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Fields   []Field
	Sections []Section
	MaxRows  int // section rows shown; 0 means all
}

// Render renders the frame to a string at the given width.
func (f Frame) Render(width int) string {
	width = max(width, 20)
	bc := f.Styles.Border
	inner := width - 4

	var lines []string

	// Top border with embedded title: ╭─ title [status] ────╮
	head := " " + f.Styles.Title.Render(f.Title) + " "
	if f.Status != "" {
		head += f.Styles.Help.Render("["+f.Status+"]") + " "
	}
	fill := max(0, width-3-lipgloss.Width(head))
	lines = append(lines, bc.Render("╭─")+head+bc.Render(strings.Repeat("─", fill)+"╮"))

	labelWidth := 0
	for _, fd := range f.Fields {
		labelWidth = max(labelWidth, lipgloss.Width(fd.Label))
	}
	for _, fd := range f.Fields {
		value := f.Styles.Value.Render(fd.Value)
		if fd.Warn {
			value = f.Styles.Warn.Render(fd.Value)
		}
		label := f.Styles.Label.Render(fd.Label + strings.Repeat(" ", labelWidth-lipgloss.Width(fd.Label)))
		lines = append(lines, f.row(bc, label+"  "+value, inner))
	}

	for _, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec, width, inner)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	return strings.Join(lines, "\n")
}

// renderSection renders a single section with embedded label.
func (f Frame) renderSection(bc lipgloss.Style, sec Section, width, inner int) []string {
	labelText := f.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines := []string{bc.Render("├─") + labelText + bc.Render(strings.Repeat("─", padding)+"┤")}

	content := sec.Content()
	shown := content
	if f.MaxRows > 0 && len(content) > f.MaxRows {
		shown = content[:f.MaxRows]
	}
	for _, text := range shown {
		lines = append(lines, f.row(bc, text, inner))
	}
	if hidden := len(content) - len(shown); hidden > 0 {
		lines = append(lines, f.row(bc, f.Styles.Help.Render(moreText(hidden)), inner))
	}
	return lines
}

func (f Frame) row(bc lipgloss.Style, text string, inner int) string {
	if lipgloss.Width(text) > inner {
		text = truncateString(text, inner-1) + "…"
	}
	return bc.Render("│") + " " + text +
		strings.Repeat(" ", max(0, inner-lipgloss.Width(text))) + " " + bc.Render("│")
}

func moreText(n int) string {
	return "… " + humanize.Comma(int64(n)) + " more"
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
