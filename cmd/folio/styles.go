package main

import (
	"fmt"
	"io"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#2CD7C7")
	colorPrimary = lipgloss.Color("#20B9B4")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#5A7A84")
)

// Styles are the terminal styles used by every command.
var Styles = struct {
	Title       lipgloss.Style
	User        lipgloss.Style
	Assistant   lipgloss.Style
	Muted       lipgloss.Style
	Warning     lipgloss.Style
	Suggestion  lipgloss.Style
	Box         lipgloss.Style
	StatusOK    lipgloss.Style
	StatusError lipgloss.Style
}{
	Title:      lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	User:       lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	Assistant:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Muted:      lipgloss.NewStyle().Foreground(colorMuted),
	Warning:    lipgloss.NewStyle().Foreground(colorWarning),
	Suggestion: lipgloss.NewStyle().Foreground(colorPrimary).Italic(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1),
	StatusOK:    lipgloss.NewStyle().SetString("✓").Foreground(colorAccent),
	StatusError: lipgloss.NewStyle().SetString("✗").Foreground(colorError),
}

func speaker(role domain.Role) string {
	if role == domain.RoleUser {
		return Styles.User.Render("you")
	}
	return Styles.Assistant.Render("assistant")
}

func printMessage(w io.Writer, m domain.Message) {
	fmt.Fprintf(w, "%s %s\n", speaker(m.Role), m.Content)
}

func printSuggestions(w io.Writer, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(w, Styles.Muted.Render("Try asking:"))
	for i, s := range suggestions {
		fmt.Fprintf(w, "  %s %s\n", Styles.Muted.Render(fmt.Sprintf("%d.", i+1)), Styles.Suggestion.Render(s))
	}
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, Styles.Warning.Render(msg))
}
