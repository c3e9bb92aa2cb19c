package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"taskflow/internal/manager"
)

type confirmRequest struct {
	prompt string
	reply  chan bool
}

type (
	noteMsg    manager.Notification
	confirmMsg confirmRequest
)

// bridge carries notifications and confirmation requests from manager
// calls running in commands into the event loop.
type bridge struct {
	notes    chan manager.Notification
	confirms chan confirmRequest
}

func newBridge() *bridge {
	return &bridge{
		notes:    make(chan manager.Notification, 32),
		confirms: make(chan confirmRequest),
	}
}

// Notify never blocks; notifications are dropped when the queue is full.
func (b *bridge) Notify(n manager.Notification) {
	select {
	case b.notes <- n:
	default:
	}
}

// Confirm blocks until the user answers the prompt in the event loop.
func (b *bridge) Confirm(ctx context.Context, prompt string) (bool, error) {
	req := confirmRequest{prompt: prompt, reply: make(chan bool, 1)}
	select {
	case b.confirms <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *bridge) waitNote() tea.Cmd {
	return func() tea.Msg {
		return noteMsg(<-b.notes)
	}
}

func (b *bridge) waitConfirm() tea.Cmd {
	return func() tea.Msg {
		return confirmMsg(<-b.confirms)
	}
}
