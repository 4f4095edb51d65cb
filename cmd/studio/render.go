package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Bold(true).Width(13)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func renderAnalysis(name string, a photo.Analysis) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), lipgloss.NewStyle().Width(64).Render(value))
	}

	lines := []string{
		titleStyle.Render("Photographer's critique") + " " + dimStyle.Render(name),
		"",
		row("Lighting", a.Lighting),
		row("Composition", a.Composition),
		row("Optics", a.Optics),
		row("Color", a.Color),
	}
	if a.HasSuggestions() {
		lines = append(lines, "", titleStyle.Render("Suggestions"))
		for _, s := range a.Suggestions {
			lines = append(lines, "  • "+s)
		}
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderPresets(presets []edit.Preset) string {
	nameStyle := lipgloss.NewStyle().Bold(true).Width(18)
	lines := []string{titleStyle.Render("Presets"), ""}
	for _, pr := range presets {
		line := nameStyle.Render(pr.Name) + pr.Title
		if pr.Description != "" {
			line += "\n" + strings.Repeat(" ", 18) + dimStyle.Render(pr.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderResult(input, output string, err error) string {
	if err != nil {
		return errStyle.Render("✗ ") + input + dimStyle.Render(": "+err.Error())
	}
	return okStyle.Render("✓ ") + input + dimStyle.Render(" → ") + output
}

func renderSummary(done, failed int) string {
	summary := fmt.Sprintf("%d enhanced", done)
	if failed > 0 {
		return summary + ", " + errStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	return okStyle.Render(summary)
}
