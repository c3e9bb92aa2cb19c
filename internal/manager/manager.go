// Package manager owns the task list of a session together with its
// filters, the create/edit form and the per-task busy markers. Every write
// goes through the task repository and is followed by a full re-fetch.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"taskflow/internal/task"
)

var (
	ErrBusy             = errors.New("operation already in progress")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoForm           = errors.New("no form is open")
	ErrTaskNotLoaded    = errors.New("task is not in the loaded list")
)

const (
	msgLoadFailed   = "Failed to load tasks. Please try again."
	msgLoginToAdd   = "Please login to create tasks"
	msgDeletePrompt = "Are you sure you want to delete this task?"
)

// Repository is the part of task.Repository the manager depends on.
type Repository interface {
	List(ctx context.Context, f task.Filters) ([]task.Task, error)
	Create(ctx context.Context, in task.Input) (task.Task, error)
	Update(ctx context.Context, id string, in task.Input) (task.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, status task.Status) (task.Task, error)
}

type Auth interface {
	UserID() string
	IsAuthenticated() bool
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

type Phase int

const (
	PhaseInit Phase = iota
	PhaseLoading
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Manager struct {
	repo    Repository
	auth    Auth
	confirm Confirmer
	notify  Notifier
	log     *slog.Logger

	mu             sync.Mutex
	tasks          []task.Task
	filters        task.Filters
	phase          Phase
	errMsg         string
	seq            uint64
	pending        int
	submitting     bool
	deleting       map[string]bool
	statusUpdating map[string]bool
	form           *Form
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithFilters sets the filters used by the first refresh.
func WithFilters(f task.Filters) Option {
	return func(m *Manager) { m.filters = f.Normalize() }
}

func New(repo Repository, auth Auth, confirm Confirmer, opts ...Option) *Manager {
	m := &Manager{
		repo:           repo,
		auth:           auth,
		confirm:        confirm,
		notify:         discard{},
		log:            slog.Default(),
		filters:        task.DefaultFilters(),
		deleting:       map[string]bool{},
		statusUpdating: map[string]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Refresh fetches the task list for the current filters. A response that
// arrives after a newer fetch was issued is dropped. On failure the
// previous list is kept.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	filters := m.filters
	m.pending++
	m.phase = PhaseLoading
	m.mu.Unlock()

	tasks, err := m.repo.List(ctx, filters)

	m.mu.Lock()
	m.pending--
	if latest := m.seq; seq != latest {
		m.mu.Unlock()
		m.log.Debug("dropping stale task list", "seq", seq, "latest", latest)
		return nil
	}
	if err != nil {
		m.phase = PhaseError
		m.errMsg = msgLoadFailed
		m.mu.Unlock()
		m.log.Error("load tasks", "error", err)
		m.emit(LevelError, msgLoadFailed)
		return err
	}
	m.tasks = tasks
	m.phase = PhaseReady
	m.errMsg = ""
	m.mu.Unlock()
	return nil
}

// Reset drops the loaded tasks, the error and the open form, as after a
// logout. Fetches still in flight are discarded when they return.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.seq++
	m.tasks = nil
	m.phase = PhaseInit
	m.errMsg = ""
	m.form = nil
	m.mu.Unlock()
}

// SetFilters replaces the filters and re-fetches.
func (m *Manager) SetFilters(ctx context.Context, f task.Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.filters = f.Normalize()
	m.mu.Unlock()
	return m.Refresh(ctx)
}

func (m *Manager) SetStatusFilter(ctx context.Context, s task.Status) error {
	return m.updateFilters(ctx, func(f *task.Filters) { f.Status = s })
}

func (m *Manager) SetPriorityFilter(ctx context.Context, p task.Priority) error {
	return m.updateFilters(ctx, func(f *task.Filters) { f.Priority = p })
}

func (m *Manager) SetSearch(ctx context.Context, search string) error {
	return m.updateFilters(ctx, func(f *task.Filters) { f.Search = search })
}

// ResetFilters restores the default filters and re-fetches.
func (m *Manager) ResetFilters(ctx context.Context) error {
	m.mu.Lock()
	m.filters = task.DefaultFilters()
	m.mu.Unlock()
	m.emit(LevelInfo, "Filters reset")
	return m.Refresh(ctx)
}

func (m *Manager) updateFilters(ctx context.Context, fn func(*task.Filters)) error {
	m.mu.Lock()
	f := m.filters
	fn(&f)
	if err := f.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.filters = f.Normalize()
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Delete asks for confirmation and removes the task. deleted is false when
// the user declined or the task was already gone.
func (m *Manager) Delete(ctx context.Context, id string) (deleted bool, err error) {
	if !m.auth.IsAuthenticated() {
		return false, ErrNotAuthenticated
	}
	m.mu.Lock()
	busy := m.deleting[id]
	m.mu.Unlock()
	if busy {
		return false, ErrBusy
	}

	ok, err := m.confirm.Confirm(ctx, msgDeletePrompt)
	if err != nil {
		return false, fmt.Errorf("confirm delete: %w", err)
	}
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	if m.deleting[id] {
		m.mu.Unlock()
		return false, ErrBusy
	}
	m.deleting[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.deleting, id)
		m.mu.Unlock()
	}()

	removed, err := m.repo.Remove(ctx, id)
	if err != nil {
		m.emit(LevelError, "Failed to delete task")
		return false, err
	}
	if removed {
		m.emit(LevelSuccess, "Task deleted successfully")
	} else {
		m.emit(LevelInfo, "Task was already deleted")
	}
	_ = m.Refresh(ctx)
	return removed, nil
}

// ChangeStatus sets the status of one task. A second change for the same
// task while one is pending fails with ErrBusy; other tasks are not
// affected.
func (m *Manager) ChangeStatus(ctx context.Context, id string, status task.Status) error {
	if !m.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !status.Valid() {
		return &task.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	m.mu.Lock()
	if m.statusUpdating[id] {
		m.mu.Unlock()
		return ErrBusy
	}
	m.statusUpdating[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.statusUpdating, id)
		m.mu.Unlock()
	}()

	if _, err := m.repo.SetStatus(ctx, id, status); err != nil {
		m.emit(LevelError, "Failed to update task status")
		return err
	}
	m.emit(LevelInfo, "Task status updated")
	_ = m.Refresh(ctx)
	return nil
}

func (m *Manager) IsSubmitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitting
}

func (m *Manager) IsDeleting(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleting[id]
}

func (m *Manager) IsUpdatingStatus(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusUpdating[id]
}

// Task returns the loaded task with id.
func (m *Manager) Task(id string) (task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return task.Task{}, false
}

// Snapshot is a copy of the manager state safe to read without locking.
type Snapshot struct {
	Phase          Phase
	Loading        bool
	Error          string
	Tasks          []task.Task
	Filtered       []task.Task
	Counts         task.Counts
	Filters        task.Filters
	Submitting     bool
	Deleting       []string
	StatusUpdating []string
	Form           *Form
}

func (s Snapshot) IsDeleting(id string) bool {
	return slices.Contains(s.Deleting, id)
}

func (s Snapshot) IsUpdatingStatus(id string) bool {
	return slices.Contains(s.StatusUpdating, id)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]task.Task, len(m.tasks))
	for i, t := range m.tasks {
		tasks[i] = t.Clone()
	}
	s := Snapshot{
		Phase:          m.phase,
		Loading:        m.pending > 0,
		Error:          m.errMsg,
		Tasks:          tasks,
		Filtered:       task.Apply(tasks, m.filters),
		Counts:         task.CountByStatus(tasks),
		Filters:        m.filters,
		Submitting:     m.submitting,
		Deleting:       sortedKeys(m.deleting),
		StatusUpdating: sortedKeys(m.statusUpdating),
	}
	if m.form != nil {
		f := m.form.clone()
		s.Form = &f
	}
	return s
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (m *Manager) emit(level Level, msg string) {
	m.notify.Notify(Notification{Level: level, Message: msg})
}
