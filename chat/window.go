package chat

import (
	"context"
	"sync"
)

// DefaultWindowSize is used when a Window is created with a non-positive size.
const DefaultWindowSize = 100

// Window keeps the most recent messages, newest first, discarding the oldest
// once Size is exceeded. Its Add method can be passed straight to Subscribe.
type Window struct {
	mu   sync.RWMutex
	size int
	msgs []ChatMessage
}

// NewWindow returns a window holding at most size messages.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size, msgs: make([]ChatMessage, 0, size)}
}

// Add inserts m at the front.
func (w *Window) Add(m ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) < w.size {
		w.msgs = append(w.msgs, ChatMessage{})
	}
	copy(w.msgs[1:], w.msgs[:len(w.msgs)-1])
	w.msgs[0] = m
}

// Messages returns a copy of the window, newest first.
func (w *Window) Messages() []ChatMessage {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ChatMessage, len(w.msgs))
	for i, m := range w.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of buffered messages.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.msgs)
}

// Size returns the configured maximum.
func (w *Window) Size() int { return w.size }

// Clear drops every buffered message.
func (w *Window) Clear() {
	w.mu.Lock()
	w.msgs = w.msgs[:0]
	w.mu.Unlock()
}

// Follow connects c to channel and records its messages into w. The window
// is cleared when the channel differs from the one c was last joined to.
func Follow(ctx context.Context, c *Client, w *Window, channel string) error {
	if c.Channel() != NormalizeChannel(channel) {
		w.Clear()
	}
	return c.Connect(ctx, channel, w.Add)
}
