// Package history keeps undo snapshots of a template being edited.
package history

import (
	"fmt"
	"sync"

	"sqpr-engine/internal/models"
)

// DefaultCapacity is the number of snapshots kept when none is configured.
const DefaultCapacity = 50

// Stack is a fixed-capacity undo stack. Every snapshot is a deep copy, so
// later edits to a pushed template never reach the stored version. When full,
// the oldest snapshot is dropped.
type Stack struct {
	mu    sync.Mutex
	items []models.Template
	head  int // index of the oldest snapshot
	size  int
}

// New returns a stack holding at most capacity snapshots. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{items: make([]models.Template, capacity)}
}

// Push stores a snapshot of t.
func (s *Stack) Push(t models.Template) error {
	snap, err := t.Clone()
	if err != nil {
		return fmt.Errorf("snapshot template %s: %w", t.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.items)
	if s.size == capacity {
		s.items[s.head] = snap
		s.head = (s.head + 1) % capacity
		return nil
	}
	s.items[(s.head+s.size)%capacity] = snap
	s.size++
	return nil
}

// Undo removes and returns the most recent snapshot.
func (s *Stack) Undo() (models.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return models.Template{}, false
	}
	idx := s.top()
	snap := s.items[idx]
	s.items[idx] = models.Template{}
	s.size--
	return snap, true
}

// Peek returns a copy of the most recent snapshot without removing it.
func (s *Stack) Peek() (models.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return models.Template{}, false
	}
	snap, err := s.items[s.top()].Clone()
	if err != nil {
		return models.Template{}, false
	}
	return snap, true
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Stack) Cap() int {
	return len(s.items)
}

// Clear drops every snapshot.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i] = models.Template{}
	}
	s.head, s.size = 0, 0
}

func (s *Stack) top() int {
	return (s.head + s.size - 1) % len(s.items)
}
