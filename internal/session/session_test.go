package session

import (
	"context"
	"errors"
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUsesConfiguredUser(t *testing.T) {
	s := New(NewLocal("u-42", "Ada"))
	assert.False(t, s.IsAuthenticated())

	u, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u-42", Name: "Ada"}, u)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "u-42", s.UserID())
}

func TestLocalNameDefaultsToID(t *testing.T) {
	u, err := New(NewLocal("ada", "")).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Name)
}

func TestLocalFallsBackToOSUser(t *testing.T) {
	l := NewLocal("", "")
	l.lookup = func() (*user.User, error) {
		return &user.User{Username: "grace", Name: "Grace Hopper"}, nil
	}
	u, err := New(l).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "grace", Name: "Grace Hopper"}, u)
}

func TestLocalLookupFailure(t *testing.T) {
	l := NewLocal("", "")
	l.lookup = func() (*user.User, error) { return nil, errors.New("no passwd entry") }

	s := New(l)
	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)
	assert.False(t, s.IsAuthenticated())
	assert.ErrorIs(t, s.Err(), ErrNoUser)
}

func TestStartHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(NewLocal("u", "")).Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogoutClearsUser(t *testing.T) {
	s := New(NewLocal("u", "U"))
	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.IsAuthenticated())
	_, ok := s.User()
	assert.False(t, ok)
}

type silentProvider struct{}

func (silentProvider) Init(context.Context, func(*User), func(error)) {}
func (silentProvider) Logout(context.Context) error { return nil }

func TestStartWithoutCallbackIsAnError(t *testing.T) {
	_, err := New(silentProvider{}).Start(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)
}
