package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"taskflow/internal/manager"
	"taskflow/internal/task"
)

type formField int

const (
	fieldTitle formField = iota
	fieldDescription
	fieldStatus
	fieldPriority
	fieldDue
	fieldTags
)

func formFields() []string {
	return []string{"title", "description", "status", "priority", "due date (YYYY-MM-DD)", "tags"}
}

func (f formField) label() string {
	return formFields()[f]
}

// choice fields are changed with left/right instead of typing.
func (f formField) choice() bool {
	return f == fieldStatus || f == fieldPriority
}

func (m Model) startForm() Model {
	m.mode = modeForm
	m.field = fieldTitle
	m.loadField()
	m.setStatus(manager.LevelInfo, m.formPrompt())
	return m
}

// loadField copies the draft value of the current field into the input.
func (m *Model) loadField() {
	snap := m.mgr.Snapshot()
	if snap.Form == nil {
		return
	}
	d := snap.Form.Draft
	m.input.Placeholder = m.field.label()
	switch m.field {
	case fieldTitle:
		m.input.SetValue(d.Title)
	case fieldDescription:
		m.input.SetValue(d.Description)
	case fieldStatus:
		m.input.SetValue(string(d.Status))
	case fieldPriority:
		m.input.SetValue(string(d.Priority))
	case fieldDue:
		m.input.SetValue(formatDate(d.DueDate))
	case fieldTags:
		m.input.SetValue(snap.Form.TagInput)
	}
	if m.field.choice() {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
}

// commitField writes the input back into the draft.
func (m Model) commitField() error {
	v := m.input.Value()
	switch m.field {
	case fieldTitle:
		return m.mgr.EditDraft(func(in *task.Input) { in.Title = v })
	case fieldDescription:
		return m.mgr.EditDraft(func(in *task.Input) { in.Description = v })
	case fieldDue:
		due, err := parseDate(v)
		if err != nil {
			return fmt.Errorf("due date invalid: %w", err)
		}
		return m.mgr.EditDraft(func(in *task.Input) { in.DueDate = due })
	case fieldTags:
		return m.mgr.SetTagInput(v)
	}
	return nil
}

func (m Model) updateFormMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.keys.Cancel, "esc":
		m.mgr.CancelForm()
		m.mode = modeList
		m.input.Blur()
		m.input.SetValue("")
		m.setStatus(manager.LevelInfo, "Edit cancelled")
		return m, nil
	case "tab", "down":
		return m.moveField(1)
	case "shift+tab", "up":
		return m.moveField(-1)
	case "left", "right":
		if !m.field.choice() {
			break
		}
		step := 1
		if key == "left" {
			step = -1
		}
		m.cycleChoice(step)
		m.loadField()
		return m, nil
	case "ctrl+x":
		if m.field == fieldTags {
			if snap := m.mgr.Snapshot(); snap.Form != nil && len(snap.Form.Draft.Tags) > 0 {
				tags := snap.Form.Draft.Tags
				_ = m.mgr.RemoveTag(tags[len(tags)-1])
			}
			return m, nil
		}
	case "ctrl+s":
		return m.saveForm()
	case m.keys.Confirm, "enter":
		if m.field == fieldTags && strings.TrimSpace(m.input.Value()) != "" {
			return m.addTag()
		}
		if m.field == fieldTags {
			return m.saveForm()
		}
		return m.moveField(1)
	}
	if m.field.choice() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) moveField(step int) (tea.Model, tea.Cmd) {
	if err := m.commitField(); err != nil {
		m.setStatus(manager.LevelError, err.Error())
		return m, nil
	}
	m.field = formField(wrapIndex(int(m.field)+step, len(formFields())))
	m.loadField()
	m.setStatus(manager.LevelInfo, m.formPrompt())
	return m, nil
}

func (m Model) cycleChoice(step int) {
	_ = m.mgr.EditDraft(func(in *task.Input) {
		switch m.field {
		case fieldStatus:
			all := task.Statuses()
			in.Status = all[wrapIndex(indexOf(all, in.Status)+step, len(all))]
		case fieldPriority:
			all := task.Priorities()
			in.Priority = all[wrapIndex(indexOf(all, in.Priority)+step, len(all))]
		}
	})
}

func (m Model) addTag() (tea.Model, tea.Cmd) {
	if err := m.mgr.SetTagInput(m.input.Value()); err != nil {
		return m, nil
	}
	ok, err := m.mgr.AddTag()
	if err != nil {
		return m, nil
	}
	if !ok {
		m.setStatus(manager.LevelError, "Tag is empty or already added")
		return m, nil
	}
	m.input.SetValue("")
	m.setStatus(manager.LevelInfo, m.formPrompt())
	return m, nil
}

func (m Model) saveForm() (tea.Model, tea.Cmd) {
	if err := m.commitField(); err != nil {
		m.setStatus(manager.LevelError, err.Error())
		return m, nil
	}
	// A tag typed but not yet added is part of the save.
	if m.field == fieldTags && strings.TrimSpace(m.input.Value()) != "" {
		if _, err := m.mgr.AddTag(); err != nil {
			m.setStatus(manager.LevelError, err.Error())
			return m, nil
		}
		m.input.SetValue("")
	}
	if m.mgr.IsSubmitting() {
		m.setStatus(manager.LevelInfo, "Saving...")
		return m, nil
	}
	return m, m.run("submit", m.mgr.Submit)
}

func (m Model) formPrompt() string {
	hint := "Enter to advance"
	switch {
	case m.field.choice():
		hint = "left/right to change"
	case m.field == fieldTags:
		hint = "Enter adds a tag (empty Enter saves), ctrl+x removes the last"
	}
	return fmt.Sprintf("Editing %s (field %d of %d). %s, tab to move, ctrl+s to save, Esc to cancel.",
		m.field.label(), int(m.field)+1, len(formFields()), hint)
}

func indexOf[T comparable](all []T, v T) int {
	for i, x := range all {
		if x == v {
			return i
		}
	}
	return 0
}

func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
