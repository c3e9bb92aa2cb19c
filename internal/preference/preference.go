// Package preference stores the per-user display name and theme choice.
package preference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"taskflow/internal/gateway"
)

const (
	Collection      = "preferences"
	DefaultUserName = "User"
)

// Schema keeps at most one preference record per owner.
var Schema = gateway.NewSchema(Collection,
	gateway.Field{Name: "userName", Column: "user_name", Type: gateway.Text},
	gateway.Field{Name: "darkMode", Column: "dark_mode", Type: gateway.Bool},
	gateway.Field{Name: "lastLogin", Column: "last_login", Type: gateway.Time},
).WithUnique(gateway.FieldOwner)

var ErrMalformedRecord = errors.New("malformed preference record")

type Preference struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	Name      string    `json:"name" yaml:"name"`
	Owner     string    `json:"owner" yaml:"owner" validate:"required"`
	UserName  string    `json:"userName" yaml:"userName"`
	DarkMode  bool      `json:"darkMode" yaml:"darkMode"`
	LastLogin time.Time `json:"lastLogin" yaml:"lastLogin"`
}

// Patch holds the fields to change. Nil fields are left as they are, or
// take their defaults when the preference is created.
type Patch struct {
	UserName *string
	DarkMode *bool
}

var validate = validator.New()

type Repository struct {
	gw  gateway.Gateway
	log *slog.Logger
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(gw gateway.Gateway, log *slog.Logger, opts ...Option) *Repository {
	if log == nil {
		log = slog.Default()
	}
	r := &Repository{gw: gw, log: log, now: time.Now, locks: map[string]*sync.Mutex{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the preference of userID. ok is false when none was ever
// stored.
func (r *Repository) Get(ctx context.Context, userID string) (p Preference, ok bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return Preference{}, false, errors.New("user id is required")
	}
	recs, err := r.gw.Fetch(ctx, Collection, gateway.Query{
		Fields: []string{gateway.FieldID, gateway.FieldName, gateway.FieldOwner, "userName", "darkMode", "lastLogin"},
		Where: []gateway.Condition{{
			FieldName: gateway.FieldOwner,
			Operator:  gateway.ExactMatch,
			Values:    []any{userID},
		}},
	})
	if err != nil {
		return Preference{}, false, r.remote("get", err)
	}
	if len(recs) == 0 {
		return Preference{}, false, nil
	}
	if len(recs) > 1 {
		r.log.Warn("multiple preference records", "owner", userID, "count", len(recs))
	}
	p, err = decode(recs[0])
	if err != nil {
		return Preference{}, false, r.remote("get", err)
	}
	return p, true, nil
}

// Upsert merges patch onto the preference of userID, creating it when
// absent, and stamps lastLogin.
func (r *Repository) Upsert(ctx context.Context, userID string, patch Patch) (Preference, error) {
	unlock := r.lock(userID)
	defer unlock()

	existing, ok, err := r.Get(ctx, userID)
	if err != nil {
		return Preference{}, err
	}
	if ok {
		return r.update(ctx, existing.ID, patch)
	}

	userName := DefaultUserName
	if patch.UserName != nil && strings.TrimSpace(*patch.UserName) != "" {
		userName = strings.TrimSpace(*patch.UserName)
	}
	darkMode := false
	if patch.DarkMode != nil {
		darkMode = *patch.DarkMode
	}
	out, err := r.gw.Create(ctx, Collection, []gateway.Record{{
		gateway.FieldName:  displayName(userName),
		gateway.FieldOwner: userID,
		"userName":         userName,
		"darkMode":         darkMode,
		"lastLogin":        r.now().UTC(),
	}})
	if errors.Is(err, gateway.ErrConflict) {
		// Another writer created it first.
		existing, ok, gerr := r.Get(ctx, userID)
		if gerr != nil {
			return Preference{}, gerr
		}
		if ok {
			return r.update(ctx, existing.ID, patch)
		}
	}
	if err != nil {
		return Preference{}, r.remote("create", err)
	}
	return r.first("create", out)
}

func (r *Repository) update(ctx context.Context, id string, patch Patch) (Preference, error) {
	rec := gateway.Record{
		gateway.FieldID: id,
		"lastLogin":     r.now().UTC(),
	}
	if patch.UserName != nil {
		name := strings.TrimSpace(*patch.UserName)
		rec["userName"] = name
		rec[gateway.FieldName] = displayName(name)
	}
	if patch.DarkMode != nil {
		rec["darkMode"] = *patch.DarkMode
	}
	out, err := r.gw.Update(ctx, Collection, []gateway.Record{rec})
	if err != nil {
		return Preference{}, r.remote("update", err)
	}
	return r.first("update", out)
}

func (r *Repository) lock(userID string) func() {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (r *Repository) first(op string, recs []gateway.Record) (Preference, error) {
	if len(recs) == 0 {
		return Preference{}, r.remote(op, errors.New("store returned no record"))
	}
	p, err := decode(recs[0])
	if err != nil {
		return Preference{}, r.remote(op, err)
	}
	return p, nil
}

func (r *Repository) remote(op string, err error) error {
	r.log.Error("preference store call failed", "op", op, "collection", Collection, "error", err)
	return &gateway.RemoteError{Op: op, Collection: Collection, Err: err}
}

func displayName(userName string) string {
	if userName == "" {
		userName = DefaultUserName
	}
	return "Preferences for " + userName
}

func decode(rec gateway.Record) (Preference, error) {
	p := Preference{
		ID:       rec.ID(),
		Name:     rec.String(gateway.FieldName),
		Owner:    rec.String(gateway.FieldOwner),
		UserName: rec.String("userName"),
		DarkMode: rec.Bool("darkMode"),
	}
	if t, ok := rec.Time("lastLogin"); ok {
		p.LastLogin = t
	}
	if err := validate.Struct(p); err != nil {
		return Preference{}, fmt.Errorf("%w %s: %v", ErrMalformedRecord, p.ID, err)
	}
	return p, nil
}
