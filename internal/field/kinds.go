package field

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/editsession"
)

// MaxSuggestions bounds the result of Suggest.Suggestions.
const MaxSuggestions = 10

// Text is a free-typed field. Static and read-only fields are Text editors
// that refuse to enter edit mode.
type Text struct{ *editor }

// NewText creates a text editor for f.
func NewText(f doctype.FormField, s *editsession.Session, onSave OnSave) *Text {
	return &Text{newEditor(f, s, nil, onSave)}
}

// Select constrains the value to its items.
type Select struct{ *editor }

// NewSelect creates a select editor for f offering items.
func NewSelect(f doctype.FormField, s *editsession.Session, items []Item, onSave OnSave) *Select {
	e := newEditor(f, s, items, onSave)
	e.validate = func(v string) error {
		if v == "" || e.hasItem(v) {
			return nil
		}
		return ErrUnknownItem
	}
	return &Select{e}
}

// Suggest is a select whose candidates are narrowed by a typed query.
type Suggest struct{ *editor }

// NewSuggest creates a suggest editor for f offering items.
func NewSuggest(f doctype.FormField, s *editsession.Session, items []Item, onSave OnSave) *Suggest {
	sel := NewSelect(f, s, items, onSave)
	return &Suggest{sel.editor}
}

// Suggestions returns the items whose value or label contains query,
// compared case-insensitively. An empty query returns the first items.
func (s *Suggest) Suggestions(query string) []Item {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	var out []Item
	for _, it := range s.items {
		if len(out) == MaxSuggestions {
			break
		}
		if q == "" ||
			strings.Contains(fold.String(it.Value), q) ||
			strings.Contains(fold.String(it.Label), q) {
			out = append(out, it)
		}
	}
	return out
}
