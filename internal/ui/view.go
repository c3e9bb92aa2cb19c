package ui

import (
	"fmt"
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/manager"
	"taskflow/internal/task"
)

func (m Model) View() string {
	snap := m.mgr.Snapshot()
	th := m.theme
	var b strings.Builder

	b.WriteString(th.title.Render("TaskFlow"))
	if name := strings.TrimSpace(m.pref.UserName); name != "" {
		b.WriteString(th.muted.Render(" - Welcome, " + name))
	}
	if snap.Loading {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderSummary(snap))
	b.WriteString("\n\n")

	if snap.Phase == manager.PhaseError {
		b.WriteString(th.level[manager.LevelError].Render(fmt.Sprintf("%s Press '%s' to retry.", snap.Error, m.keys.Retry)))
		b.WriteString("\n\n")
	}

	switch {
	case !m.auth.IsAuthenticated():
		b.WriteString(th.muted.Render(fmt.Sprintf("Not signed in. Press '%s' to sign in.", m.keys.Logout)))
	case len(snap.Filtered) > 0:
		b.WriteString(m.renderTaskList(snap))
	case snap.Phase == manager.PhaseInit || (snap.Phase == manager.PhaseLoading && len(snap.Tasks) == 0):
		b.WriteString(th.muted.Render("Loading tasks..."))
	case len(snap.Tasks) > 0 || !snap.Filters.IsDefault():
		b.WriteString(th.muted.Render(fmt.Sprintf("No tasks match the filters. Press '%s' to clear them.", m.keys.ClearFilters)))
	default:
		b.WriteString(th.muted.Render(fmt.Sprintf("No tasks yet. Press '%s' to add one.", m.keys.Add)))
	}
	b.WriteString("\n")

	switch m.mode {
	case modeForm:
		b.WriteString(m.renderForm(snap))
	case modeSearch, modeName:
		b.WriteString(th.panel.Render(m.input.View()))
	default:
		b.WriteString(m.renderDetail(snap))
	}

	b.WriteString("\n\n")
	b.WriteString(th.level[m.statusLevel].Render(m.status))
	b.WriteString("\n")
	b.WriteString(th.muted.Render(renderHelp(m.keys)))
	return b.String()
}

func (m Model) renderSummary(snap manager.Snapshot) string {
	th := m.theme
	parts := make([]string, 0, 3)
	for _, s := range task.Statuses() {
		parts = append(parts, th.status[s].Render(fmt.Sprintf("%s %d", s.Label(), snap.Counts[s])))
	}
	summary := strings.Join(parts, " • ")

	f := snap.Filters
	filters := fmt.Sprintf("status:%s priority:%s", f.Status.Label(), f.Priority.Label())
	if f.Search != "" {
		filters += fmt.Sprintf(" search:%q", f.Search)
	}
	return summary + "   " + th.muted.Render(filters)
}

func (m Model) renderTaskList(snap manager.Snapshot) string {
	th := m.theme
	var b strings.Builder
	cur := clampCursor(m.cursor, len(snap.Filtered))
	for i, t := range snap.Filtered {
		cursor := " "
		if i == cur && m.mode == modeList {
			cursor = ">"
		}
		busy := "  "
		if snap.IsUpdatingStatus(t.ID) || snap.IsDeleting(t.ID) {
			busy = m.spinner.View() + " "
		}

		title := th.text.Render(t.Title)
		if i == cur && m.mode == modeList {
			title = th.selected.Render(t.Title)
		}
		line := fmt.Sprintf("%s %s%-12s %-7s %s",
			cursor,
			busy,
			th.status[t.Status].Render("["+t.Status.Label()+"]"),
			th.priority[t.Priority].Render(t.Priority.Label()),
			title,
		)
		if t.DueDate != nil {
			line += th.muted.Render(" due:" + formatDate(t.DueDate))
		}
		for _, tag := range t.Tags {
			line += " " + th.tag.Render("#"+tag)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetail(snap manager.Snapshot) string {
	t, ok := m.selected(snap)
	if !ok {
		return m.theme.muted.Render("No task selected")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Title       : %s\n", t.Title))
	b.WriteString(fmt.Sprintf("Description : %s\n", emptyPlaceholder(t.Description)))
	b.WriteString(fmt.Sprintf("Status      : %s\n", t.Status.Label()))
	b.WriteString(fmt.Sprintf("Priority    : %s\n", t.Priority.Label()))
	b.WriteString(fmt.Sprintf("Due         : %s\n", emptyPlaceholder(formatDate(t.DueDate))))
	b.WriteString(fmt.Sprintf("Tags        : %s\n", emptyPlaceholder(strings.Join(t.Tags, ", "))))
	b.WriteString(fmt.Sprintf("Created     : %s", t.CreatedAt.Local().Format("2006-01-02 15:04")))
	return m.theme.panel.Render(b.String())
}

func (m Model) renderForm(snap manager.Snapshot) string {
	if snap.Form == nil {
		return ""
	}
	th := m.theme
	d := snap.Form.Draft
	heading := "New task"
	if snap.Form.Mode == manager.ModeEdit {
		heading = "Edit task"
	}
	if snap.Submitting {
		heading += " " + m.spinner.View()
	}

	values := []string{
		d.Title,
		d.Description,
		d.Status.Label(),
		d.Priority.Label(),
		formatDate(d.DueDate),
		strings.Join(d.Tags, ", "),
	}
	var b strings.Builder
	b.WriteString(th.title.Render(heading))
	b.WriteString("\n")
	for i, name := range formFields() {
		prefix := " "
		if formField(i) == m.field {
			prefix = ">"
		}
		b.WriteString(fmt.Sprintf("%s %-22s : %s\n", prefix, name, emptyPlaceholder(values[i])))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if snap.Form.Error != "" {
		b.WriteString("\n")
		b.WriteString(th.level[manager.LevelError].Render(snap.Form.Error))
	}
	return th.panel.Render(b.String())
}

func renderHelp(k config.Keymap) string {
	return fmt.Sprintf("%s/%s move • %s add • %s edit • %s delete • %s/%s/%s/space status • %s/%s filter • %s search • %s clear • %s theme • %s name • %s sign in/out • %s quit",
		k.Up, k.Down, k.Add, k.Edit, k.Delete, k.StatusTodo, k.StatusProgress, k.StatusDone,
		k.FilterStatus, k.FilterPriority, k.Search, k.ClearFilters, k.Theme, k.Rename, k.Logout, k.Quit)
}

func emptyPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(empty)"
	}
	return v
}
