// Package audit keeps the trail of documents saved through the console.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matthewbaird/erpconsole/internal/eventbus"
)

// DefaultLimit bounds ByDocument when no limit is given.
const DefaultLimit = 20

// Entry is one saved change.
type Entry struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	Doctype    string    `json:"doctype"`
	Name       string    `json:"name"`
	Fields     []string  `json:"fields"`
}

// Store is the interface for reading and writing audit entries.
type Store interface {
	Write(ctx context.Context, e Entry) error
	// ByDocument returns the latest entries of one document, newest first.
	ByDocument(ctx context.Context, doctype, name string, limit int) ([]Entry, error)
	Close() error
}

// Open returns a SQLite store for dsn, or a MemoryStore when dsn is empty.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQL(ctx, dsn)
}

// MemoryStore implements Store using an in-memory slice.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Fields = append([]string(nil), e.Fields...)
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) ByDocument(_ context.Context, doctype, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Doctype == doctype && e.Name == name {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Close() error { return nil }

// Consumer writes DocumentSaved events to a Store.
type Consumer struct {
	store Store
}

// NewConsumer creates a bus consumer feeding store.
func NewConsumer(store Store) *Consumer { return &Consumer{store: store} }

func (c *Consumer) HandleEvent(ctx context.Context, evt eventbus.Event) error {
	if evt.Type != eventbus.DocumentSaved {
		return nil
	}
	return c.store.Write(ctx, Entry{
		ID:         evt.ID,
		OccurredAt: evt.OccurredAt,
		Actor:      evt.Actor,
		Doctype:    evt.Doctype,
		Name:       evt.Name,
		Fields:     evt.Fields,
	})
}
