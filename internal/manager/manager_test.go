package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/task"
)

type fakeAuth struct{ id string }

func (a fakeAuth) UserID() string { return a.id }
func (a fakeAuth) IsAuthenticated() bool { return a.id != "" }

// fakeRepo is an in-memory task repository. Hooks let a test block or fail
// individual calls.
type fakeRepo struct {
	mu     sync.Mutex
	tasks  []task.Task
	calls  []string
	nextID int

	listHook      func(f task.Filters) ([]task.Task, error)
	setStatusHook func(id string) error
	createErr     error
	removeErr     error
}

func (r *fakeRepo) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *fakeRepo) callCount(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == prefix {
			n++
		}
	}
	return n
}

func (r *fakeRepo) List(_ context.Context, f task.Filters) ([]task.Task, error) {
	r.record("list")
	if r.listHook != nil {
		return r.listHook(f)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.Task, 0, len(r.tasks))
	for _, t := range task.Apply(r.tasks, f) {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, in task.Input) (task.Task, error) {
	r.record("create")
	if r.createErr != nil {
		return task.Task{}, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := task.Task{
		ID:        "t" + strconv.Itoa(r.nextID),
		Title:     in.Title,
		Status:    in.Status,
		Priority:  in.Priority,
		Tags:      in.Tags,
		CreatedAt: time.Now(),
	}
	r.tasks = append([]task.Task{t}, r.tasks...)
	return t, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, in task.Input) (task.Task, error) {
	r.record("update")
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.ID == id {
			r.tasks[i].Title = in.Title
			r.tasks[i].Status = in.Status
			r.tasks[i].Priority = in.Priority
			r.tasks[i].Tags = in.Tags
			return r.tasks[i], nil
		}
	}
	return task.Task{}, errors.New("not found")
}

func (r *fakeRepo) Remove(_ context.Context, id string) (bool, error) {
	r.record("remove")
	if r.removeErr != nil {
		return false, r.removeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.ID == id {
			r.tasks = slices.Delete(r.tasks, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) SetStatus(_ context.Context, id string, status task.Status) (task.Task, error) {
	r.record("setStatus")
	if r.setStatusHook != nil {
		if err := r.setStatusHook(id); err != nil {
			return task.Task{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.ID == id {
			r.tasks[i].Status = status
			return r.tasks[i], nil
		}
	}
	return task.Task{}, errors.New("not found")
}

type notes struct {
	mu  sync.Mutex
	got []Notification
}

func (n *notes) Notify(x Notification) {
	n.mu.Lock()
	n.got = append(n.got, x)
	n.mu.Unlock()
}

func (n *notes) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.got))
	for i, x := range n.got {
		out[i] = x.Message
	}
	return out
}

func answer(yes bool) ConfirmFunc {
	return func(context.Context, string) (bool, error) { return yes, nil }
}

func seeded() *fakeRepo {
	return &fakeRepo{tasks: []task.Task{
		{ID: "a", Title: "Pay rent", Status: task.StatusTodo, Priority: task.PriorityHigh},
		{ID: "b", Title: "Read book", Status: task.StatusDone, Priority: task.PriorityLow},
	}}
}

func newManager(repo Repository, confirm Confirmer, n *notes) *Manager {
	return New(repo, fakeAuth{id: "u1"}, confirm,
		WithNotifier(n),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestRefreshRequiresAuthentication(t *testing.T) {
	repo := seeded()
	m := New(repo, fakeAuth{}, answer(true))

	assert.ErrorIs(t, m.Refresh(context.Background()), ErrNotAuthenticated)
	assert.Empty(t, repo.calls)
	assert.Equal(t, PhaseInit, m.Snapshot().Phase)
}

func TestRefreshLoadsTasksAndCounts(t *testing.T) {
	m := newManager(seeded(), answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, PhaseReady, s.Phase)
	assert.False(t, s.Loading)
	assert.Equal(t, []string{"a", "b"}, ids(s.Tasks))
	assert.Equal(t, task.Counts{task.StatusTodo: 1, task.StatusInProgress: 0, task.StatusDone: 1}, s.Counts)
}

func TestStatusFilterNarrowsListButNotCounts(t *testing.T) {
	repo := seeded()
	// Return the whole list regardless of filters so the client-side view
	// is what narrows it.
	repo.listHook = func(task.Filters) ([]task.Task, error) {
		return slices.Clone(seeded().tasks), nil
	}
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.SetStatusFilter(context.Background(), task.StatusTodo))

	s := m.Snapshot()
	assert.Equal(t, []string{"a"}, ids(s.Filtered))
	assert.Equal(t, 2, s.Counts.Total())
	assert.Equal(t, task.StatusTodo, s.Filters.Status)
}

func TestRefreshFailureKeepsPreviousList(t *testing.T) {
	repo := seeded()
	n := &notes{}
	m := newManager(repo, answer(true), n)
	require.NoError(t, m.Refresh(context.Background()))

	repo.listHook = func(task.Filters) ([]task.Task, error) { return nil, errors.New("offline") }
	assert.Error(t, m.Refresh(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, PhaseError, s.Phase)
	assert.Equal(t, "Failed to load tasks. Please try again.", s.Error)
	assert.Equal(t, []string{"a", "b"}, ids(s.Tasks))
	assert.Contains(t, n.messages(), "Failed to load tasks. Please try again.")

	repo.listHook = nil
	require.NoError(t, m.Refresh(context.Background()))
	assert.Empty(t, m.Snapshot().Error)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	repo := seeded()
	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	repo.listHook = func(f task.Filters) ([]task.Task, error) {
		if f.Search == "" {
			first.Do(func() { close(entered) })
			<-release
			return []task.Task{{ID: "stale", Title: "stale", Status: task.StatusTodo, Priority: task.PriorityLow}}, nil
		}
		return []task.Task{{ID: "fresh", Title: "fresh", Status: task.StatusTodo, Priority: task.PriorityLow}}, nil
	}
	m := newManager(repo, answer(true), &notes{})

	done := make(chan error)
	go func() { done <- m.Refresh(context.Background()) }()
	<-entered

	require.NoError(t, m.SetSearch(context.Background(), "fresh"))
	assert.True(t, m.Snapshot().Loading, "older fetch still in flight")

	close(release)
	require.NoError(t, <-done)

	s := m.Snapshot()
	assert.Equal(t, []string{"fresh"}, ids(s.Tasks))
	assert.Equal(t, PhaseReady, s.Phase)
	assert.False(t, s.Loading)
}

func TestSubmitBlankTitleMakesNoCall(t *testing.T) {
	repo := seeded()
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))
	before := m.Snapshot()

	require.NoError(t, m.OpenCreate())
	require.NoError(t, m.EditDraft(func(in *task.Input) {
		in.Title = "  "
		in.Description = "x"
	}))
	err := m.Submit(context.Background())

	var verr *task.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, repo.callCount("create"))

	s := m.Snapshot()
	require.NotNil(t, s.Form)
	assert.Equal(t, "Task title is required", s.Form.Error)
	assert.False(t, s.Submitting)
	assert.Equal(t, before.Tasks, s.Tasks)
}

func TestSubmitCreateClosesFormAndRefetches(t *testing.T) {
	repo := seeded()
	n := &notes{}
	m := newManager(repo, answer(true), n)
	require.NoError(t, m.OpenCreate())

	s := m.Snapshot()
	require.NotNil(t, s.Form)
	assert.Equal(t, task.StatusTodo, s.Form.Draft.Status)
	assert.Equal(t, task.PriorityMedium, s.Form.Draft.Priority)

	require.NoError(t, m.EditDraft(func(in *task.Input) { in.Title = "Buy milk" }))
	require.NoError(t, m.Submit(context.Background()))

	s = m.Snapshot()
	assert.Nil(t, s.Form)
	assert.False(t, s.Submitting)
	assert.Len(t, s.Tasks, 3)
	assert.Equal(t, 1, repo.callCount("list"))
	assert.Contains(t, n.messages(), "New task created successfully")
}

func TestSubmitFailureKeepsFormOpen(t *testing.T) {
	repo := seeded()
	repo.createErr = errors.New("server error")
	n := &notes{}
	m := newManager(repo, answer(true), n)
	require.NoError(t, m.Refresh(context.Background()))

	require.NoError(t, m.OpenCreate())
	require.NoError(t, m.EditDraft(func(in *task.Input) { in.Title = "Buy milk" }))
	assert.Error(t, m.Submit(context.Background()))

	s := m.Snapshot()
	require.NotNil(t, s.Form)
	assert.Equal(t, "Buy milk", s.Form.Draft.Title)
	assert.Equal(t, "Failed to create task", s.Form.Error)
	assert.False(t, s.Submitting)
	assert.Len(t, s.Tasks, 2)
	assert.Contains(t, n.messages(), "Failed to create task")
}

func TestSubmitEditUpdatesTask(t *testing.T) {
	repo := seeded()
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))

	require.NoError(t, m.OpenEdit("b"))
	s := m.Snapshot()
	require.NotNil(t, s.Form)
	assert.Equal(t, ModeEdit, s.Form.Mode)
	assert.Equal(t, "Read book", s.Form.Draft.Title)

	require.NoError(t, m.EditDraft(func(in *task.Input) { in.Title = "Read two books" }))
	require.NoError(t, m.Submit(context.Background()))

	got, ok := m.Task("b")
	require.True(t, ok)
	assert.Equal(t, "Read two books", got.Title)

	assert.ErrorIs(t, m.OpenEdit("missing"), ErrTaskNotLoaded)
}

func TestDeclinedDeleteMakesNoCall(t *testing.T) {
	repo := seeded()
	m := newManager(repo, answer(false), &notes{})
	require.NoError(t, m.Refresh(context.Background()))

	deleted, err := m.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Zero(t, repo.callCount("remove"))
	assert.Len(t, m.Snapshot().Tasks, 2)
}

func TestDeleteRemovesTaskFromNextList(t *testing.T) {
	repo := seeded()
	var prompt string
	confirm := ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return true, nil
	})
	n := &notes{}
	m := newManager(repo, confirm, n)
	require.NoError(t, m.Refresh(context.Background()))

	deleted, err := m.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "Are you sure you want to delete this task?", prompt)
	assert.NotContains(t, ids(m.Snapshot().Tasks), "a")
	assert.Contains(t, n.messages(), "Task deleted successfully")
	assert.False(t, m.IsDeleting("a"))

	deleted, err = m.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteFailureLeavesListUnchanged(t *testing.T) {
	repo := seeded()
	repo.removeErr = errors.New("forbidden")
	n := &notes{}
	m := newManager(repo, answer(true), n)
	require.NoError(t, m.Refresh(context.Background()))

	_, err := m.Delete(context.Background(), "a")
	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(m.Snapshot().Tasks))
	assert.Contains(t, n.messages(), "Failed to delete task")
	assert.False(t, m.IsDeleting("a"))
}

func TestStatusChangesAreKeyedByTask(t *testing.T) {
	repo := seeded()
	entered := make(chan struct{})
	release := make(chan struct{})
	repo.setStatusHook = func(id string) error {
		if id == "b" {
			close(entered)
			<-release
		}
		return nil
	}
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))

	done := make(chan error)
	go func() { done <- m.ChangeStatus(context.Background(), "b", task.StatusInProgress) }()
	<-entered

	s := m.Snapshot()
	assert.True(t, s.IsUpdatingStatus("b"))
	assert.False(t, s.IsUpdatingStatus("a"))

	require.NoError(t, m.ChangeStatus(context.Background(), "a", task.StatusDone))
	assert.ErrorIs(t, m.ChangeStatus(context.Background(), "b", task.StatusDone), ErrBusy)

	close(release)
	require.NoError(t, <-done)

	s = m.Snapshot()
	assert.Empty(t, s.StatusUpdating)
	a, _ := m.Task("a")
	b, _ := m.Task("b")
	assert.Equal(t, task.StatusDone, a.Status)
	assert.Equal(t, task.StatusInProgress, b.Status)
}

func TestStatusChangeFailureClearsBusy(t *testing.T) {
	repo := seeded()
	repo.setStatusHook = func(string) error { return errors.New("timeout") }
	n := &notes{}
	m := newManager(repo, answer(true), n)

	assert.Error(t, m.ChangeStatus(context.Background(), "a", task.StatusDone))
	assert.False(t, m.IsUpdatingStatus("a"))
	assert.Contains(t, n.messages(), "Failed to update task status")
}

func TestFormTagEditing(t *testing.T) {
	m := newManager(seeded(), answer(true), &notes{})
	require.NoError(t, m.OpenCreate())

	require.NoError(t, m.SetTagInput("  work "))
	ok, err := m.AddTag()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.SetTagInput("work"))
	ok, err = m.AddTag()
	require.NoError(t, err)
	assert.False(t, ok)

	s := m.Snapshot()
	assert.Equal(t, []string{"work"}, s.Form.Draft.Tags)
	assert.Equal(t, "work", s.Form.TagInput)

	require.NoError(t, m.RemoveTag("work"))
	assert.Empty(t, m.Snapshot().Form.Draft.Tags)

	m.CancelForm()
	assert.Nil(t, m.Snapshot().Form)
	_, err = m.AddTag()
	assert.ErrorIs(t, err, ErrNoForm)
	assert.ErrorIs(t, m.Submit(context.Background()), ErrNoForm)
}

func TestOpenCreateRequiresLogin(t *testing.T) {
	n := &notes{}
	m := New(seeded(), fakeAuth{}, answer(true), WithNotifier(n))
	assert.ErrorIs(t, m.OpenCreate(), ErrNotAuthenticated)
	assert.Equal(t, []string{"Please login to create tasks"}, n.messages())
}

func TestResetFilters(t *testing.T) {
	n := &notes{}
	m := New(seeded(), fakeAuth{id: "u1"}, answer(true),
		WithNotifier(n),
		WithFilters(task.Filters{Status: task.StatusDone}),
	)
	assert.Equal(t, task.StatusDone, m.Snapshot().Filters.Status)

	require.NoError(t, m.ResetFilters(context.Background()))
	assert.True(t, m.Snapshot().Filters.IsDefault())
	assert.Equal(t, []string{"Filters reset"}, n.messages())

	assert.Error(t, m.SetPriorityFilter(context.Background(), "someday"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	repo := &fakeRepo{tasks: []task.Task{{ID: "a", Title: "x", Status: task.StatusTodo, Priority: task.PriorityLow, Tags: []string{"one"}}}}
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))

	s := m.Snapshot()
	s.Tasks[0].Tags[0] = "changed"
	got, _ := m.Task("a")
	assert.Equal(t, []string{"one"}, got.Tags)
}

func TestResetClearsStateAndDropsInflightFetch(t *testing.T) {
	repo := seeded()
	m := newManager(repo, answer(true), &notes{})
	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.OpenCreate())

	entered := make(chan struct{})
	release := make(chan struct{})
	repo.listHook = func(task.Filters) ([]task.Task, error) {
		close(entered)
		<-release
		return []task.Task{{ID: "late", Title: "late", Status: task.StatusTodo, Priority: task.PriorityLow}}, nil
	}
	done := make(chan error)
	go func() { done <- m.Refresh(context.Background()) }()
	<-entered

	m.Reset()
	close(release)
	require.NoError(t, <-done)

	s := m.Snapshot()
	assert.Empty(t, s.Tasks)
	assert.Nil(t, s.Form)
	assert.Equal(t, PhaseInit, s.Phase)
	assert.Empty(t, s.Error)
}
