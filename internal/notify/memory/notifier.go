// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"
)

// Notifier stores sent messages for inspection.
type Notifier struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// Message captures one Send call.
type Message struct {
	To      string
	Subject string
	Body    string
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Fail makes every later Send return err. A nil err restores delivery.
func (n *Notifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Send records the message.
func (n *Notifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns the recorded sends.
func (n *Notifier) Messages() []Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
