package ui

import (
	"github.com/charmbracelet/lipgloss"

	"taskflow/internal/manager"
	"taskflow/internal/task"
)

type palette struct {
	fg, muted, accent, selected lipgloss.Color
	todo, progress, done        lipgloss.Color
	low, medium, high, urgent   lipgloss.Color
	ok, err                     lipgloss.Color
}

var (
	darkPalette = palette{
		fg: "#E5E7EB", muted: "#9CA3AF", accent: "#A78BFA", selected: "#312E81",
		todo: "#93C5FD", progress: "#FCD34D", done: "#6EE7B7",
		low: "#9CA3AF", medium: "#93C5FD", high: "#FDBA74", urgent: "#FCA5A5",
		ok: "#6EE7B7", err: "#FCA5A5",
	}
	lightPalette = palette{
		fg: "#111827", muted: "#6B7280", accent: "#6D28D9", selected: "#EDE9FE",
		todo: "#1D4ED8", progress: "#B45309", done: "#047857",
		low: "#6B7280", medium: "#1D4ED8", high: "#C2410C", urgent: "#B91C1C",
		ok: "#047857", err: "#B91C1C",
	}
)

type theme struct {
	dark     bool
	title    lipgloss.Style
	text     lipgloss.Style
	muted    lipgloss.Style
	selected lipgloss.Style
	tag      lipgloss.Style
	panel    lipgloss.Style
	status   map[task.Status]lipgloss.Style
	priority map[task.Priority]lipgloss.Style
	level    map[manager.Level]lipgloss.Style
}

func newTheme(dark bool) theme {
	p := lightPalette
	if dark {
		p = darkPalette
	}
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return theme{
		dark:     dark,
		title:    fg(p.accent).Bold(true),
		text:     fg(p.fg),
		muted:    fg(p.muted),
		selected: fg(p.fg).Background(p.selected).Bold(true),
		tag:      fg(p.accent).Italic(true),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.muted).Padding(0, 1),
		status: map[task.Status]lipgloss.Style{
			task.StatusTodo:       fg(p.todo),
			task.StatusInProgress: fg(p.progress),
			task.StatusDone:       fg(p.done),
		},
		priority: map[task.Priority]lipgloss.Style{
			task.PriorityLow:    fg(p.low),
			task.PriorityMedium: fg(p.medium),
			task.PriorityHigh:   fg(p.high),
			task.PriorityUrgent: fg(p.urgent).Bold(true),
		},
		level: map[manager.Level]lipgloss.Style{
			manager.LevelInfo:    fg(p.muted),
			manager.LevelSuccess: fg(p.ok),
			manager.LevelError:   fg(p.err).Bold(true),
		},
	}
}
