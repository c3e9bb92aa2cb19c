package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskflow/internal/config"
	"taskflow/internal/manager"
	"taskflow/internal/preference"
	"taskflow/internal/session"
	"taskflow/internal/task"
)

type mode int

const (
	modeList mode = iota
	modeForm
	modeSearch
	modeName
)

// Preferences is the part of preference.Repository the TUI uses.
type Preferences interface {
	Get(ctx context.Context, userID string) (preference.Preference, bool, error)
	Upsert(ctx context.Context, userID string, patch preference.Patch) (preference.Preference, error)
}

// Signer signs the user in and out. session.Session implements it.
type Signer interface {
	Start(ctx context.Context) (*session.User, error)
	Logout(ctx context.Context) error
}

type Options struct {
	Repo    manager.Repository
	Auth    manager.Auth
	Session Signer
	Prefs   Preferences
	Keys    config.Keymap
	Filters task.Filters
	Log     *slog.Logger
}

const opDelete = "delete"

type opDoneMsg struct {
	op  string
	err error
}

type sessionMsg struct {
	loggedOut bool
	err       error
}

type prefMsg struct {
	pref  preference.Preference
	ok    bool
	saved bool
	err   error
}

type Model struct {
	ctx    context.Context
	mgr    *manager.Manager
	prefs  Preferences
	auth   manager.Auth
	signer Signer
	keys   config.Keymap
	log    *slog.Logger
	bridge *bridge

	cursor      int
	mode        mode
	field       formField
	input       textinput.Model
	spinner     spinner.Model
	status      string
	statusLevel manager.Level
	confirm     *confirmRequest
	pref        preference.Preference
	theme       theme

	// deletePending is set from the delete key until the delete command ends.
	deletePending bool
}

func New(ctx context.Context, opts Options) Model {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	b := newBridge()
	mgr := manager.New(opts.Repo, opts.Auth, b,
		manager.WithNotifier(b),
		manager.WithLogger(opts.Log),
		manager.WithFilters(opts.Filters),
	)

	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		mgr:     mgr,
		prefs:   opts.Prefs,
		auth:    opts.Auth,
		signer:  opts.Session,
		keys:    opts.Keys,
		log:     opts.Log,
		bridge:  b,
		mode:    modeList,
		input:   ti,
		spinner: sp,
		status:  fmt.Sprintf("Press '%s' to add, '%s' to edit, '%s' to delete.", opts.Keys.Add, opts.Keys.Edit, opts.Keys.Delete),
		theme:   newTheme(false),
	}
}

func Run(ctx context.Context, opts Options) error {
	program := tea.NewProgram(New(ctx, opts), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.bridge.waitNote(),
		m.bridge.waitConfirm(),
		m.refresh(),
		m.loadPrefs(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirm != nil {
			return m.updateDeleteConfirm(msg.String())
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.input.Width = max(msg.Width-10, 10)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case noteMsg:
		m.status = msg.Message
		m.statusLevel = msg.Level
		return m, m.bridge.waitNote()
	case confirmMsg:
		req := confirmRequest(msg)
		if m.confirm != nil {
			// Only one prompt is shown at a time; a second request is declined.
			req.reply <- false
			return m, m.bridge.waitConfirm()
		}
		m.confirm = &req
		m.status = req.prompt + " y/n"
		m.statusLevel = manager.LevelInfo
		return m, m.bridge.waitConfirm()
	case opDoneMsg:
		if msg.op == opDelete {
			m.deletePending = false
		}
		if msg.err != nil {
			m.log.Debug("operation finished with error", "op", msg.op, "error", msg.err)
		}
		return m.sync(), nil
	case sessionMsg:
		return m.handleSession(msg)
	case prefMsg:
		if msg.err != nil {
			if msg.saved {
				m.setStatus(manager.LevelError, "Failed to save preferences")
			} else {
				m.setStatus(manager.LevelError, "Failed to load preferences")
			}
			return m, nil
		}
		if msg.ok {
			m.pref = msg.pref
			m.theme = newTheme(msg.pref.DarkMode)
		}
		if msg.saved {
			m.setStatus(manager.LevelSuccess, "Preferences saved")
		}
	}
	return m, nil
}

// sync reconciles view state with the manager after an operation.
func (m Model) sync() Model {
	snap := m.mgr.Snapshot()
	if m.mode == modeForm && snap.Form == nil {
		m.mode = modeList
		m.input.Blur()
		m.input.SetValue("")
	}
	m.cursor = clampCursor(m.cursor, len(snap.Filtered))
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.mode {
	case modeForm:
		return m.updateFormMode(key, msg)
	case modeSearch:
		return m.updateSearchMode(key, msg)
	case modeName:
		return m.updateNameMode(key, msg)
	default:
		return m.updateListMode(key)
	}
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	snap := m.mgr.Snapshot()
	switch key {
	case "ctrl+c", m.keys.Quit:
		return m, tea.Quit
	case m.keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(snap.Filtered))
	case m.keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(snap.Filtered))
	case m.keys.Add:
		if err := m.mgr.OpenCreate(); err != nil {
			return m, nil
		}
		return m.startForm(), nil
	case m.keys.Edit:
		t, ok := m.selected(snap)
		if !ok {
			m.setStatus(manager.LevelInfo, "No tasks to edit")
			return m, nil
		}
		if err := m.mgr.OpenEdit(t.ID); err != nil {
			m.setStatus(manager.LevelError, fmt.Sprintf("edit failed: %v", err))
			return m, nil
		}
		return m.startForm(), nil
	case m.keys.Toggle:
		t, ok := m.selected(snap)
		if !ok {
			return m, nil
		}
		return m.changeStatus(snap, t, nextStatus(t.Status))
	case m.keys.StatusTodo:
		return m.changeSelectedStatus(snap, task.StatusTodo)
	case m.keys.StatusProgress:
		return m.changeSelectedStatus(snap, task.StatusInProgress)
	case m.keys.StatusDone:
		return m.changeSelectedStatus(snap, task.StatusDone)
	case m.keys.Delete:
		t, ok := m.selected(snap)
		if !ok {
			return m, nil
		}
		if m.deletePending || snap.IsDeleting(t.ID) {
			m.setStatus(manager.LevelInfo, "Delete already in progress")
			return m, nil
		}
		m.deletePending = true
		return m, m.run(opDelete, func(ctx context.Context) error {
			_, err := m.mgr.Delete(ctx, t.ID)
			return err
		})
	case m.keys.FilterStatus:
		next := cycleStatusFilter(snap.Filters.Status)
		return m, m.run("filter", func(ctx context.Context) error {
			return m.mgr.SetStatusFilter(ctx, next)
		})
	case m.keys.FilterPriority:
		next := cyclePriorityFilter(snap.Filters.Priority)
		return m, m.run("filter", func(ctx context.Context) error {
			return m.mgr.SetPriorityFilter(ctx, next)
		})
	case m.keys.Search:
		m.mode = modeSearch
		m.input.Placeholder = "Search title, description or tags"
		m.input.SetValue(snap.Filters.Search)
		m.input.Focus()
		m.setStatus(manager.LevelInfo, "Search: type and press Enter, Esc to cancel")
	case m.keys.ClearFilters:
		m.cursor = 0
		return m, m.run("filter", m.mgr.ResetFilters)
	case m.keys.Theme:
		return m, m.savePref(preference.Patch{DarkMode: ptr(!m.pref.DarkMode)})
	case m.keys.Rename:
		m.mode = modeName
		m.input.Placeholder = "Your name (empty to clear)"
		m.input.SetValue(m.pref.UserName)
		m.input.Focus()
		m.setStatus(manager.LevelInfo, "Name: type and press Enter, Esc to cancel")
	case m.keys.Retry:
		if snap.Phase == manager.PhaseError {
			return m, m.refresh()
		}
	case m.keys.Logout:
		return m, m.toggleSession()
	}
	return m, nil
}

func (m Model) changeSelectedStatus(snap manager.Snapshot, s task.Status) (tea.Model, tea.Cmd) {
	t, ok := m.selected(snap)
	if !ok {
		return m, nil
	}
	return m.changeStatus(snap, t, s)
}

func (m Model) changeStatus(snap manager.Snapshot, t task.Task, s task.Status) (tea.Model, tea.Cmd) {
	if snap.IsUpdatingStatus(t.ID) {
		m.setStatus(manager.LevelInfo, "Status update already in progress")
		return m, nil
	}
	if t.Status == s {
		return m, nil
	}
	return m, m.run("status", func(ctx context.Context) error {
		return m.mgr.ChangeStatus(ctx, t.ID, s)
	})
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		m.confirm.reply <- true
		m.confirm = nil
		m.setStatus(manager.LevelInfo, "Deleting...")
	case "n", "N", "esc", m.keys.Cancel:
		m.confirm.reply <- false
		m.confirm = nil
		m.setStatus(manager.LevelInfo, "Delete cancelled")
	}
	return m, nil
}

func (m Model) updateSearchMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.keys.Cancel, "esc":
		m.mode = modeList
		m.input.Blur()
		m.setStatus(manager.LevelInfo, "Search cancelled")
		return m, nil
	case m.keys.Confirm, "enter":
		search := m.input.Value()
		m.mode = modeList
		m.input.Blur()
		m.cursor = 0
		return m, m.run("filter", func(ctx context.Context) error {
			return m.mgr.SetSearch(ctx, search)
		})
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) updateNameMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.keys.Cancel, "esc":
		m.mode = modeList
		m.input.Blur()
		m.setStatus(manager.LevelInfo, "Cancelled")
		return m, nil
	case m.keys.Confirm, "enter":
		name := strings.TrimSpace(m.input.Value())
		m.mode = modeList
		m.input.Blur()
		return m, m.savePref(preference.Patch{UserName: &name})
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// run executes fn off the event loop and reports completion.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	return m.run("refresh", m.mgr.Refresh)
}

// toggleSession signs out when authenticated and signs in otherwise.
func (m Model) toggleSession() tea.Cmd {
	if m.signer == nil {
		return nil
	}
	ctx, signer := m.ctx, m.signer
	if m.auth.IsAuthenticated() {
		return func() tea.Msg {
			return sessionMsg{loggedOut: true, err: signer.Logout(ctx)}
		}
	}
	return func() tea.Msg {
		_, err := signer.Start(ctx)
		return sessionMsg{err: err}
	}
}

func (m Model) handleSession(msg sessionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.log.Error("session", "logout", msg.loggedOut, "error", msg.err)
		if msg.loggedOut {
			m.setStatus(manager.LevelError, "Failed to sign out")
		} else {
			m.setStatus(manager.LevelError, "Failed to sign in")
		}
		return m, nil
	}
	if msg.loggedOut {
		m.mgr.Reset()
		m.mode = modeList
		m.cursor = 0
		m.input.Blur()
		m.pref = preference.Preference{}
		m.theme = newTheme(false)
		m.setStatus(manager.LevelInfo, fmt.Sprintf("Signed out. Press '%s' to sign in.", m.keys.Logout))
		return m, nil
	}
	m.setStatus(manager.LevelSuccess, "Signed in")
	return m, tea.Batch(m.refresh(), m.loadPrefs())
}

func (m Model) loadPrefs() tea.Cmd {
	if m.prefs == nil || !m.auth.IsAuthenticated() {
		return nil
	}
	ctx, prefs, userID := m.ctx, m.prefs, m.auth.UserID()
	return func() tea.Msg {
		p, ok, err := prefs.Get(ctx, userID)
		return prefMsg{pref: p, ok: ok, err: err}
	}
}

func (m Model) savePref(patch preference.Patch) tea.Cmd {
	if m.prefs == nil || !m.auth.IsAuthenticated() {
		return nil
	}
	ctx, prefs, userID, log := m.ctx, m.prefs, m.auth.UserID(), m.log
	return func() tea.Msg {
		p, err := prefs.Upsert(ctx, userID, patch)
		if err != nil {
			log.Error("save preferences", "error", err)
		}
		return prefMsg{pref: p, ok: err == nil, saved: true, err: err}
	}
}

func (m *Model) setStatus(level manager.Level, msg string) {
	m.statusLevel = level
	m.status = msg
}

func (m Model) selected(snap manager.Snapshot) (task.Task, bool) {
	if len(snap.Filtered) == 0 {
		return task.Task{}, false
	}
	return snap.Filtered[clampCursor(m.cursor, len(snap.Filtered))], true
}

func nextStatus(s task.Status) task.Status {
	all := task.Statuses()
	for i, v := range all {
		if v == s {
			return all[wrapIndex(i+1, len(all))]
		}
	}
	return task.StatusTodo
}

func cycleStatusFilter(s task.Status) task.Status {
	all := append([]task.Status{task.StatusAll}, task.Statuses()...)
	for i, v := range all {
		if v == s {
			return all[wrapIndex(i+1, len(all))]
		}
	}
	return task.StatusAll
}

func cyclePriorityFilter(p task.Priority) task.Priority {
	all := append([]task.Priority{task.PriorityAll}, task.Priorities()...)
	for i, v := range all {
		if v == p {
			return all[wrapIndex(i+1, len(all))]
		}
	}
	return task.PriorityAll
}

func ptr[T any](v T) *T { return &v }

func wrapIndex(idx, n int) int {
	if n <= 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
