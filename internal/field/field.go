// Package field implements the editors of a detail form. Every editor shares
// one state machine: view mode, local edit mode with its own pending value
// and commit/cancel controls, and the form-wide edit mode inherited from the
// edit session.
//
// Editors never hold the committed value themselves. It is read from the
// session baseline on every render, and commits go through the session's
// UpdateField and Save, so the session's modified flag stays consistent for
// every field kind.
package field

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/editsession"
)

var (
	ErrReadOnly    = errors.New("field is read-only")
	ErrUnknownItem = errors.New("value is not one of the field's items")
	ErrNotEditing  = errors.New("field is not in edit mode")
)

// Placeholder is displayed for empty values.
const Placeholder = "-"

// Item is one candidate value of a select or suggest field. LabelKey, when
// set, is a translation key; otherwise Label is displayed as is.
type Item struct {
	Value    string `json:"value"`
	Label    string `json:"label,omitempty"`
	LabelKey string `json:"label_key,omitempty"`
}

// View is the render model of one editor.
type View struct {
	Name     string            `json:"name"`
	LabelKey string            `json:"label_key"`
	Kind     doctype.FieldKind `json:"kind"`
	// Display is the committed value, or Placeholder when empty.
	Display string `json:"display"`
	// DisplayKey translates Display when the value maps to an enum item.
	DisplayKey string `json:"display_key,omitempty"`
	Input      string `json:"input"`
	Items      []Item `json:"items,omitempty"`
	Editing    bool   `json:"editing"`
	// ShowControls is set only in local edit mode; the form-wide mode has
	// its own save and cancel controls.
	ShowControls       bool `json:"show_controls"`
	ShowEditAffordance bool `json:"show_edit_affordance"`
}

// Editor is the contract shared by every field kind.
type Editor interface {
	Name() string
	Kind() doctype.FieldKind
	View() View
	// BeginEdit enters local edit mode.
	BeginEdit() error
	// SetPending sets the value bound to the input. In form-wide edit mode it
	// writes straight into the session working copy.
	SetPending(value string) error
	// Commit saves the pending value through the session and leaves local
	// edit mode.
	Commit(ctx context.Context) error
	// Cancel discards the pending value and leaves local edit mode.
	Cancel()
}

// OnSave is notified after a successful local commit.
type OnSave func(name string, value any)

type editor struct {
	name     string
	labelKey string
	kind     doctype.FieldKind
	editable bool
	items    []Item
	session  *editsession.Session
	onSave   OnSave

	mu      sync.Mutex
	local   bool
	pending string
	// validate checks a value before it reaches the session.
	validate func(string) error
}

func newEditor(f doctype.FormField, s *editsession.Session, items []Item, onSave OnSave) *editor {
	e := &editor{
		name:     f.Name,
		labelKey: f.LabelKey,
		kind:     f.Kind,
		editable: !f.ReadOnly && f.Kind != doctype.FieldStatic,
		items:    items,
		session:  s,
		onSave:   onSave,
	}
	s.OnEditMode(func(on bool) {
		if on {
			e.clearLocal()
		}
	})
	return e
}

func (e *editor) Name() string            { return e.name }
func (e *editor) Kind() doctype.FieldKind { return e.kind }

func (e *editor) clearLocal() {
	e.mu.Lock()
	e.local = false
	e.pending = ""
	e.mu.Unlock()
}

func (e *editor) committed() string {
	v, _ := e.session.BaselineField(e.name)
	return Format(v)
}

func (e *editor) working() string {
	v, _ := e.session.Field(e.name)
	return Format(v)
}

func (e *editor) View() View {
	global := e.session.EditMode()
	e.mu.Lock()
	local, pending := e.local, e.pending
	e.mu.Unlock()

	v := View{
		Name:     e.name,
		LabelKey: e.labelKey,
		Kind:     e.kind,
		Display:  e.committed(),
	}
	for _, it := range e.items {
		if it.Value == v.Display {
			if it.LabelKey != "" {
				v.DisplayKey = it.LabelKey
			} else if it.Label != "" {
				v.Display = it.Label
			}
			break
		}
	}
	if v.Display == "" {
		v.Display = Placeholder
	}

	switch {
	case local:
		v.Editing = true
		v.ShowControls = true
		v.Input = pending
	case global && e.editable:
		v.Editing = true
		v.Input = e.working()
	default:
		v.ShowEditAffordance = e.editable && !global
	}
	v.Items = e.itemsWith(v.Input)
	return v
}

// itemsWith returns the items, plus value as a trailing item when it is set
// but not among them, so a stored value that fell out of the list stays
// selectable.
func (e *editor) itemsWith(value string) []Item {
	if e.items == nil || value == "" || e.hasItem(value) {
		return e.items
	}
	out := make([]Item, len(e.items), len(e.items)+1)
	copy(out, e.items)
	return append(out, Item{Value: value, Label: value})
}

func (e *editor) BeginEdit() error {
	if !e.editable {
		return fmt.Errorf("%s: %w", e.name, ErrReadOnly)
	}
	if e.session.EditMode() {
		// Already editable through the form-wide mode.
		return nil
	}
	committed := e.committed()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.local {
		e.local = true
		e.pending = committed
	}
	return nil
}

// SetPending accepts the current working value as is, even when a select
// no longer offers it. An empty string equals a null or absent field.
func (e *editor) SetPending(value string) error {
	if !e.editable {
		return fmt.Errorf("%s: %w", e.name, ErrReadOnly)
	}
	unchanged := value == e.working()
	if e.validate != nil && !unchanged {
		if err := e.validate(value); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}

	e.mu.Lock()
	if e.local {
		e.pending = value
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if !e.session.EditMode() {
		return fmt.Errorf("%s: %w", e.name, ErrNotEditing)
	}
	if !unchanged {
		e.session.UpdateField(e.name, value)
	}
	return nil
}

func (e *editor) Commit(ctx context.Context) error {
	e.mu.Lock()
	if !e.local {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", e.name, ErrNotEditing)
	}
	value := e.pending
	e.mu.Unlock()

	before, present := e.session.Field(e.name)
	if value == Format(before) {
		e.clearLocal()
		return nil
	}
	e.session.UpdateField(e.name, value)
	if err := e.session.Save(ctx); err != nil {
		e.session.RestoreField(e.name, before, present)
		return err
	}

	e.clearLocal()
	if e.onSave != nil {
		e.onSave(e.name, value)
	}
	return nil
}

func (e *editor) Cancel() {
	e.clearLocal()
}

func (e *editor) hasItem(value string) bool {
	for _, it := range e.items {
		if it.Value == value {
			return true
		}
	}
	return false
}

// Format renders a document value as text.
func Format(v any) string { return doctype.FormatValue(v) }
