// Package editsession implements the record-editing state machine shared by
// every field of a detail form: a baseline document, a working copy, a
// modification flag and the form-wide edit mode.
//
// A Session is used by one detail view at a time. Its methods are guarded by
// a mutex so a view may be touched from concurrent requests, but no
// reference to either copy ever leaves the session: readers get deep copies.
package editsession

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/go-cmp/cmp"
)

// Document is a record's fields keyed by field name.
type Document = map[string]any

// Persister writes a saved working copy to its remote home.
type Persister interface {
	Persist(ctx context.Context, doc Document) error
}

// PersisterFunc adapts a plain function to the Persister interface.
type PersisterFunc func(ctx context.Context, doc Document) error

func (f PersisterFunc) Persist(ctx context.Context, doc Document) error {
	return f(ctx, doc)
}

// Session tracks the baseline and working copies of one open record.
type Session struct {
	doctype   string
	mu        sync.Mutex
	editMode  bool
	baseline  Document
	working   Document
	modified  bool
	persister Persister
	listeners []func(editMode bool)
}

// New opens a session over doc. Both copies start as deep copies of doc.
// A nil persister makes Save purely local.
func New(doctype string, doc Document, p Persister) *Session {
	return &Session{
		doctype:   doctype,
		baseline:  Clone(doc),
		working:   Clone(doc),
		persister: p,
	}
}

// Doctype returns the canonical record-type name of the open document.
func (s *Session) Doctype() string { return s.doctype }

// OnEditMode registers a listener called after every edit-mode change.
// Listeners run without the session lock held.
func (s *Session) OnEditMode(fn func(editMode bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// EditMode reports whether the whole form is in edit mode.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// EnterEdit switches the form to edit mode. It is a no-op when already
// editing.
func (s *Session) EnterEdit() {
	s.setEditMode(true)
}

// ExitEdit switches the form back to view mode.
func (s *Session) ExitEdit() {
	s.setEditMode(false)
}

func (s *Session) setEditMode(on bool) {
	s.mu.Lock()
	if s.editMode == on {
		s.mu.Unlock()
		return
	}
	s.editMode = on
	listeners := append([]func(bool){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(on)
	}
}

// IsModified reports whether the working copy differs from the baseline.
func (s *Session) IsModified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// UpdateField sets one field of the working copy and recomputes the
// modification flag by deep comparison against the baseline.
func (s *Session) UpdateField(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[name] = cloneValue(value)
	s.modified = !cmp.Equal(s.working, s.baseline)
}

// RestoreField puts a working-copy field back to what Field returned
// earlier. A field that was not present is removed again.
func (s *Session) RestoreField(name string, value any, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if present {
		s.working[name] = cloneValue(value)
	} else {
		delete(s.working, name)
	}
	s.modified = !cmp.Equal(s.working, s.baseline)
}

// Cancel discards the working copy, replacing it with a fresh copy of the
// baseline. It is valid in either mode and does not change the mode.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = Clone(s.baseline)
	s.modified = false
}

// Save makes the working copy the new baseline. Nothing happens, and the
// persister is not called, when the working copy is unmodified. When the
// persister fails the session is left untouched.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if !s.modified {
		s.mu.Unlock()
		return nil
	}
	snapshot := Clone(s.working)
	p := s.persister
	s.mu.Unlock()

	if p != nil {
		if err := p.Persist(ctx, snapshot); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = snapshot
	s.modified = !cmp.Equal(s.working, s.baseline)
	return nil
}

// Field returns a copy of a working-copy field.
func (s *Session) Field(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.working[name]
	return cloneValue(v), ok
}

// BaselineField returns a copy of a baseline field: the last saved value.
func (s *Session) BaselineField(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.baseline[name]
	return cloneValue(v), ok
}

// Working returns a deep copy of the working document.
func (s *Session) Working() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.working)
}

// Baseline returns a deep copy of the baseline document.
func (s *Session) Baseline() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.baseline)
}

// ChangedFields lists, sorted, the fields whose working value differs from
// the baseline.
func (s *Session) ChangedFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, v := range s.working {
		if bv, ok := s.baseline[k]; !ok || !cmp.Equal(v, bv) {
			out = append(out, k)
		}
	}
	for k := range s.baseline {
		if _, ok := s.working[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
