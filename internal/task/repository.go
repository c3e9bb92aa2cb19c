package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskflow/internal/gateway"
)

const Collection = "tasks"

// Schema is the stored shape of a task. Tags are kept as one
// comma-joined text field.
var Schema = gateway.NewSchema(Collection,
	gateway.Field{Name: "Tags", Column: "tags", Type: gateway.Text},
	gateway.Field{Name: "title", Column: "title", Type: gateway.Text, Required: true},
	gateway.Field{Name: "description", Column: "description", Type: gateway.Text},
	gateway.Field{Name: "status", Column: "status", Type: gateway.Text, Required: true},
	gateway.Field{Name: "priority", Column: "priority", Type: gateway.Text, Required: true},
	gateway.Field{Name: "dueDate", Column: "due_date", Type: gateway.Date},
	gateway.Field{Name: "createdAt", Column: "created_at", Type: gateway.Time, Required: true},
)

var listFields = []string{
	gateway.FieldID, gateway.FieldName, "Tags", gateway.FieldOwner,
	"title", "description", "status", "priority", "dueDate", "createdAt",
}

// Repository maps task operations onto the record store. It keeps no state
// between calls.
type Repository struct {
	gw    gateway.Gateway
	owner string
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Repository)

// WithClock overrides the time source used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository scopes every list to owner and stamps it on created tasks.
// An empty owner disables scoping.
func NewRepository(gw gateway.Gateway, owner string, log *slog.Logger, opts ...Option) *Repository {
	if log == nil {
		log = slog.Default()
	}
	r := &Repository{gw: gw, owner: owner, log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the tasks matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filters) ([]Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.Normalize()

	q := gateway.Query{
		Fields:  listFields,
		OrderBy: []gateway.Order{{FieldName: "createdAt", SortType: gateway.Desc}},
	}
	if r.owner != "" {
		q.Where = append(q.Where, exact(gateway.FieldOwner, r.owner))
	}
	if f.Status != StatusAll {
		q.Where = append(q.Where, exact("status", string(f.Status)))
	}
	if f.Priority != PriorityAll {
		q.Where = append(q.Where, exact("priority", string(f.Priority)))
	}
	if f.Search != "" {
		group := gateway.Group{Operator: gateway.Or}
		for _, field := range []string{"title", "description", "Tags"} {
			group.SubGroups = append(group.SubGroups, gateway.SubGroup{
				Conditions: []gateway.Condition{{FieldName: field, Operator: gateway.Contains, Values: []any{f.Search}}},
			})
		}
		q.WhereGroups = []gateway.Group{group}
	}

	recs, err := r.gw.Fetch(ctx, Collection, q)
	if err != nil {
		return nil, r.remote("list", err)
	}
	tasks := make([]Task, 0, len(recs))
	for _, rec := range recs {
		t, err := decode(rec)
		if err != nil {
			return nil, r.remote("list", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, &ValidationError{Field: "id", Message: "task id is required"}
	}
	rec, err := r.gw.GetByID(ctx, Collection, id)
	if err != nil {
		return Task{}, r.remote("get", err)
	}
	t, err := decode(rec)
	if err != nil {
		return Task{}, r.remote("get", err)
	}
	return t, nil
}

// Create validates in and stores it, stamping createdAt with the current
// time. The store assigns the id.
func (r *Repository) Create(ctx context.Context, in Input) (Task, error) {
	in = in.withDefaults()
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	rec := encode(in)
	rec["createdAt"] = r.now().UTC()
	if r.owner != "" {
		rec[gateway.FieldOwner] = r.owner
	}

	out, err := r.gw.Create(ctx, Collection, []gateway.Record{rec})
	if err != nil {
		return Task{}, r.remote("create", err)
	}
	return r.first("create", out)
}

// Update replaces title, description, status, priority, due date and tags
// of the task with id.
func (r *Repository) Update(ctx context.Context, id string, in Input) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, &ValidationError{Field: "id", Message: "task id is required"}
	}
	in = in.withDefaults()
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	rec := encode(in)
	rec[gateway.FieldID] = id

	out, err := r.gw.Update(ctx, Collection, []gateway.Record{rec})
	if err != nil {
		return Task{}, r.remote("update", err)
	}
	return r.first("update", out)
}

// Remove deletes the task with id. Removing an id that no longer exists
// returns false without an error.
func (r *Repository) Remove(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, &ValidationError{Field: "id", Message: "task id is required"}
	}
	ok, err := r.gw.Delete(ctx, Collection, []string{id})
	if err != nil {
		return false, r.remote("delete", err)
	}
	return ok, nil
}

// SetStatus changes only the status of the task with id.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, &ValidationError{Field: "id", Message: "task id is required"}
	}
	if !status.Valid() {
		return Task{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	out, err := r.gw.Update(ctx, Collection, []gateway.Record{{
		gateway.FieldID: id,
		"status":        string(status),
	}})
	if err != nil {
		return Task{}, r.remote("set status", err)
	}
	return r.first("set status", out)
}

func (r *Repository) first(op string, recs []gateway.Record) (Task, error) {
	if len(recs) == 0 {
		return Task{}, r.remote(op, errors.New("store returned no record"))
	}
	t, err := decode(recs[0])
	if err != nil {
		return Task{}, r.remote(op, err)
	}
	return t, nil
}

func (r *Repository) remote(op string, err error) error {
	r.log.Error("task store call failed", "op", op, "collection", Collection, "error", err)
	return &gateway.RemoteError{Op: op, Collection: Collection, Err: err}
}

func exact(field string, value any) gateway.Condition {
	return gateway.Condition{FieldName: field, Operator: gateway.ExactMatch, Values: []any{value}}
}

func encode(in Input) gateway.Record {
	rec := gateway.Record{
		gateway.FieldName: strings.TrimSpace(in.Title),
		"title":           strings.TrimSpace(in.Title),
		"description":     in.Description,
		"status":          string(in.Status),
		"priority":        string(in.Priority),
		"Tags":            joinTags(in.Tags),
		"dueDate":         nil,
	}
	if in.DueDate != nil {
		rec["dueDate"] = *in.DueDate
	}
	return rec
}

func decode(rec gateway.Record) (Task, error) {
	t := Task{
		ID:          rec.ID(),
		Title:       rec.String("title"),
		Description: rec.String("description"),
		Status:      Status(rec.String("status")),
		Priority:    Priority(rec.String("priority")),
		Tags:        splitTags(rec.String("Tags")),
		Owner:       rec.String(gateway.FieldOwner),
	}
	if due, ok := rec.Time("dueDate"); ok {
		t.DueDate = &due
	}
	if created, ok := rec.Time("createdAt"); ok {
		t.CreatedAt = created
	}
	if err := validateStruct(t); err != nil {
		return Task{}, fmt.Errorf("%w %s: %v", ErrMalformedRecord, t.ID, err)
	}
	return t, nil
}

// joinTags stores tags comma-joined; a comma inside a tag splits it into
// separate tags once stored.
func joinTags(tags []string) string {
	return strings.Join(splitTags(strings.Join(tags, ",")), ",")
}

func splitTags(v string) []string {
	return normalizeTags(strings.Split(v, ","))
}
