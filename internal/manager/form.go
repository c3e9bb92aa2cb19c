package manager

import (
	"context"
	"errors"

	"taskflow/internal/task"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// Form is the draft being created or edited.
type Form struct {
	Mode     Mode
	TaskID   string
	Draft    task.Input
	TagInput string
	Error    string
}

func (f Form) clone() Form {
	f.Draft = f.Draft.Clone()
	return f
}

// OpenCreate opens an empty form with the default status and priority.
func (m *Manager) OpenCreate() error {
	if !m.auth.IsAuthenticated() {
		m.emit(LevelError, msgLoginToAdd)
		return ErrNotAuthenticated
	}
	m.mu.Lock()
	m.form = &Form{Mode: ModeCreate, Draft: task.NewInput()}
	m.mu.Unlock()
	return nil
}

// OpenEdit opens a form populated from the loaded task with id.
func (m *Manager) OpenEdit(id string) error {
	if !m.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	t, ok := m.Task(id)
	if !ok {
		return ErrTaskNotLoaded
	}
	m.mu.Lock()
	m.form = &Form{Mode: ModeEdit, TaskID: id, Draft: t.Input()}
	m.mu.Unlock()
	return nil
}

// EditDraft applies fn to the open draft.
func (m *Manager) EditDraft(fn func(*task.Input)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return ErrNoForm
	}
	fn(&m.form.Draft)
	m.form.Error = ""
	return nil
}

func (m *Manager) SetTagInput(v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return ErrNoForm
	}
	m.form.TagInput = v
	return nil
}

// AddTag moves the pending tag input into the draft. The input is cleared
// when the tag was added and kept otherwise.
func (m *Manager) AddTag() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return false, ErrNoForm
	}
	tags, ok := task.AddTag(m.form.Draft.Tags, m.form.TagInput)
	if ok {
		m.form.Draft.Tags = tags
		m.form.TagInput = ""
	}
	return ok, nil
}

func (m *Manager) RemoveTag(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form == nil {
		return ErrNoForm
	}
	m.form.Draft.Tags = task.RemoveTag(m.form.Draft.Tags, tag)
	return nil
}

func (m *Manager) CancelForm() {
	m.mu.Lock()
	m.form = nil
	m.mu.Unlock()
}

// Submit creates or updates the task held by the form. An invalid draft is
// reported on the form without calling the repository. The form closes
// only on success.
func (m *Manager) Submit(ctx context.Context) error {
	if !m.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	m.mu.Lock()
	form := m.form
	if form == nil {
		m.mu.Unlock()
		return ErrNoForm
	}
	if m.submitting {
		m.mu.Unlock()
		return ErrBusy
	}
	draft := form.Draft.Clone()
	if err := draft.Validate(); err != nil {
		msg := err.Error()
		var verr *task.ValidationError
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		form.Error = msg
		m.mu.Unlock()
		m.emit(LevelError, msg)
		return err
	}
	form.Error = ""
	m.submitting = true
	mode, id := form.Mode, form.TaskID
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.submitting = false
		m.mu.Unlock()
	}()

	var err error
	if mode == ModeEdit {
		_, err = m.repo.Update(ctx, id, draft)
	} else {
		_, err = m.repo.Create(ctx, draft)
	}
	if err != nil {
		msg := "Failed to create task"
		if mode == ModeEdit {
			msg = "Failed to update task"
		}
		m.mu.Lock()
		if m.form == form {
			form.Error = msg
		}
		m.mu.Unlock()
		m.emit(LevelError, msg)
		return err
	}

	m.mu.Lock()
	if m.form == form {
		m.form = nil
	}
	m.mu.Unlock()
	if mode == ModeEdit {
		m.emit(LevelSuccess, "Task updated successfully")
	} else {
		m.emit(LevelSuccess, "New task created successfully")
	}
	_ = m.Refresh(ctx)
	return nil
}
