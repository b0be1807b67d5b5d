package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sike25/chronicle-poc/internal/timeline"
)

const axisWidth = 72

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	markerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("166"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	detailStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("166")).
		Padding(0, 1).
		Width(axisWidth)
)

// axis draws one marker per point on a line of width columns, at the
// column matching the point's position.
func axis(points []timeline.Point, width int) string {
	line := []rune(strings.Repeat("─", width))
	for _, p := range points {
		col := int(p.Position * float64(width))
		if col >= width {
			col = width - 1
		}
		line[col] = '●'
	}
	return string(line)
}

// renderTimeline draws the timeline of query for a terminal.
func renderTimeline(query string, points []timeline.Point) string {
	var b strings.Builder
	title := timeline.Title(query)
	pad := (axisWidth - lipgloss.Width(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + titleStyle.Render(title) + "\n\n")

	if len(points) == 0 {
		b.WriteString(mutedStyle.Render("No data for this query.") + "\n")
		return b.String()
	}

	b.WriteString(markerStyle.Render(axis(points, axisWidth)) + "\n\n")

	labelWidth := 0
	for _, p := range points {
		labelWidth = max(labelWidth, lipgloss.Width(p.Label))
	}
	for _, p := range points {
		fmt.Fprintf(&b, "  %2d  %-*s  %-12s  %s\n", p.Index, labelWidth, p.Label, p.CountLabel, mutedStyle.Render(p.Title))
	}
	return b.String()
}

// renderDetail draws a bucket's detail view in a box.
func renderDetail(v timeline.DetailView) string {
	var b strings.Builder
	b.WriteString(mutedStyle.Render(v.Period) + "\n")
	b.WriteString(titleStyle.Render(v.Title) + "\n\n")
	b.WriteString(v.Summary + "\n")
	if len(v.Citations) > 0 {
		b.WriteString("\nArticles:\n")
		for _, c := range v.Citations {
			b.WriteString("  - " + c + "\n")
		}
	}
	return detailStyle.Render(strings.TrimRight(b.String(), "\n"))
}
