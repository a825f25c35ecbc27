package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type changedMsg struct{}

type noticeMsg string

type confirmMsg struct {
	text   string
	answer chan bool
}

type doneMsg struct {
	op  string
	err error
}

// Bridge lets the controller ask and tell the user things through a
// running program. Messages sent before Attach are dropped.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

func (b *Bridge) post(msg tea.Msg) bool {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

func (b *Bridge) Notify(msg string) {
	b.post(noticeMsg(msg))
}

// Confirm shows msg as a y/n prompt and blocks until the user answers or
// ctx is done.
func (b *Bridge) Confirm(ctx context.Context, msg string) (bool, error) {
	answer := make(chan bool, 1)
	if !b.post(confirmMsg{text: msg, answer: answer}) {
		return false, nil
	}

	select {
	case yes := <-answer:
		return yes, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Changed tells the program the list may have changed.
func (b *Bridge) Changed() {
	b.post(changedMsg{})
}
