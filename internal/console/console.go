// Package console holds the message log shown by interactive clients.
package console

import (
	"strings"
	"sync"
	"time"
)

// DefaultLimit is the history size used by New.
const DefaultLimit = 1000

// Message is one console line.
type Message struct {
	At   time.Time
	Text string
}

// Store is a bounded, goroutine-safe message log with a visibility flag.
// The log starts visible.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
	visible  bool
	now      func() time.Time
}

// New returns a store keeping at most limit messages. A non-positive limit
// uses DefaultLimit.
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit, visible: true, now: time.Now}
}

// Messages returns a copy of the log, oldest first.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of messages held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Add appends msg, evicting the oldest message when full.
func (s *Store) Add(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{At: s.now(), Text: msg})
	if over := len(s.messages) - s.limit; over > 0 {
		copy(s.messages, s.messages[over:])
		s.messages = s.messages[:s.limit]
	}
}

// Write adds each non-empty line of p, so a Store can back a log sink.
func (s *Store) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			s.Add(line)
		}
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (s *Store) Sync() error { return nil }

// Clear drops every message.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Toggle flips visibility and returns the new value.
func (s *Store) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = !s.visible
	return s.visible
}

func (s *Store) Visible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// String renders the log one message per line.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, m := range s.messages {
		b.WriteString(m.At.Format("15:04:05.000"))
		b.WriteByte(' ')
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
