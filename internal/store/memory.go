// Package store persists course documents. Every implementation treats a
// course as one document guarded by its Version: a save is accepted only
// when the stored version still matches the one the caller loaded.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/systemshift/coursefs/internal/dag"
)

// Memory keeps courses in process memory.
type Memory struct {
	mu      sync.Mutex
	courses map[string]*dag.Course
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{courses: make(map[string]*dag.Course)}
}

// Create stores c as version 1.
func (m *Memory) Create(_ context.Context, c *dag.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; ok {
		return errors.Wrapf(dag.ErrDuplicateCourse, "course %s", c.ID)
	}
	c.Version = 1
	m.courses[c.ID] = c.Clone()
	return nil
}

// Load returns a private copy of course id.
func (m *Memory) Load(_ context.Context, id string) (*dag.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, errors.Wrapf(dag.ErrNotFound, "course %s", id)
	}
	return c.Clone(), nil
}

// Save replaces the stored course if its version still matches c.Version.
func (m *Memory) Save(_ context.Context, c *dag.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.courses[c.ID]
	if !ok {
		return errors.Wrapf(dag.ErrNotFound, "course %s", c.ID)
	}
	if cur.Version != c.Version {
		return conflict(c.ID, c.Version, cur.Version)
	}
	c.Version++
	m.courses[c.ID] = c.Clone()
	return nil
}

// List returns every course id, sorted.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.courses))
	for id := range m.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

func conflict(id string, have, stored uint64) error {
	return errors.Wrapf(dag.ErrConflict, "course %s: loaded version %d, stored version %d", id, have, stored)
}
