// Package session resolves the signed-in user and tracks whether the
// current session is authenticated.
package session

import (
	"context"
	"errors"
	"os/user"
	"strings"
	"sync"
)

var ErrNoUser = errors.New("no user could be resolved")

type User struct {
	ID   string
	Name string
}

// Provider initializes a session and reports the outcome through exactly
// one of the callbacks.
type Provider interface {
	Init(ctx context.Context, onSuccess func(*User), onError func(error))
	Logout(ctx context.Context) error
}

// Local resolves the user from configuration, falling back to the
// operating system account.
type Local struct {
	UserID   string
	UserName string

	// lookup is replaced in tests.
	lookup func() (*user.User, error)
}

func NewLocal(userID, userName string) *Local {
	return &Local{UserID: userID, UserName: userName, lookup: user.Current}
}

func (l *Local) Init(ctx context.Context, onSuccess func(*User), onError func(error)) {
	if err := ctx.Err(); err != nil {
		onError(err)
		return
	}
	u, err := l.resolve()
	if err != nil {
		onError(err)
		return
	}
	onSuccess(u)
}

func (l *Local) resolve() (*User, error) {
	id := strings.TrimSpace(l.UserID)
	name := strings.TrimSpace(l.UserName)
	if id != "" {
		if name == "" {
			name = id
		}
		return &User{ID: id, Name: name}, nil
	}
	if l.lookup == nil {
		return nil, ErrNoUser
	}
	osUser, err := l.lookup()
	if err != nil {
		return nil, errors.Join(ErrNoUser, err)
	}
	if osUser.Username == "" {
		return nil, ErrNoUser
	}
	if name == "" {
		name = osUser.Name
	}
	if name == "" {
		name = osUser.Username
	}
	return &User{ID: osUser.Username, Name: name}, nil
}

func (l *Local) Logout(context.Context) error {
	return nil
}

// Session holds the outcome of Provider.Init. It is safe for concurrent
// use.
type Session struct {
	provider Provider

	mu   sync.RWMutex
	user *User
	err  error
}

func New(p Provider) *Session {
	return &Session{provider: p}
}

// Start initializes the session and returns the signed-in user.
func (s *Session) Start(ctx context.Context) (*User, error) {
	var (
		u   *User
		err error
	)
	s.provider.Init(ctx,
		func(got *User) { u = got },
		func(e error) { err = e },
	)
	if err == nil && u == nil {
		err = ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.user, s.err = nil, err
		return nil, err
	}
	s.user, s.err = u, nil
	cp := *u
	return &cp, nil
}

func (s *Session) Logout(ctx context.Context) error {
	if err := s.provider.Logout(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Session) IsAuthenticated() bool {
	return s.UserID() != ""
}

// Err returns the failure of the last Start, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
