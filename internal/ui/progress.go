package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// clearLine returns the cursor to column 0 and erases the line
const clearLine = "\r\x1b[2K"

// Progress is a single-line progress bar redrawn in place while expansions
// are solved
type Progress struct {
	Label string // e.g., "Solving"
	Done  int    // Expansions solved so far
	Total int    // Expansions to solve
	Width int    // Terminal width
	out   io.Writer
	bar   progress.Model
}

// NewProgress creates a progress bar that draws on out
func NewProgress(out io.Writer, label string) *Progress {
	p := &Progress{Label: label, out: out}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = clampWidth(width)
	// Leave room for the label, percentage and counter
	barWidth := p.Width - 40
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	return p
}

// Percent returns the solved fraction in [0, 1]
func (p *Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	if p.Done >= p.Total {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Render returns the progress line without a trailing newline
func (p *Progress) Render() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %s  %3.0f%%  [%d/%d]",
			ProgressLabelStyle.Render(p.Label), p.bar.ViewAs(p.Percent()), p.Percent()*100, p.Done, p.Total))
}

// Update records done of total expansions solved and redraws the line.
// It matches the analysis OnSolved callback.
func (p *Progress) Update(done, total int) {
	p.Done, p.Total = done, total
	fmt.Fprint(p.out, clearLine+p.Render())
}

// Clear erases the progress line so the result box starts on a clean line
func (p *Progress) Clear() {
	fmt.Fprint(p.out, clearLine)
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
