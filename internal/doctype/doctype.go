// Package doctype holds the record-type registry: static metadata describing
// how each ERP record type is listed and edited by the console.
//
// The registry is loaded once at startup (see Load) and is read-only
// afterwards, so it is safe for concurrent read access.
package doctype

import (
	"errors"
	"fmt"
	"regexp"
)

// CellKind selects how a list cell renders its raw value.
type CellKind string

const (
	// CellText renders the raw value as plain text.
	CellText CellKind = "text"
	// CellBadge maps the raw value to a labelled, styled badge.
	CellBadge CellKind = "badge"
)

// Badge is one entry of a badge cell's value mapping.
type Badge struct {
	LabelKey string `json:"label_key"`
	Style    string `json:"style"`
}

// CellRenderer is the closed set of cell-rendering strategies. Links are
// orthogonal and come from Column.LinkTemplate.
type CellRenderer struct {
	Kind   CellKind         `json:"kind"`
	Badges map[string]Badge `json:"badges,omitempty"`
}

// Column describes one list-view column.
type Column struct {
	FieldName    string       `json:"field_name"`
	TitleKey     string       `json:"title_key"`
	Width        string       `json:"width,omitempty"`
	Alignment    string       `json:"alignment,omitempty"`
	LinkTemplate string       `json:"link,omitempty"`
	Cell         CellRenderer `json:"cell"`
}

// ListSettings configures the list view of a record type.
type ListSettings struct {
	DefaultSort string   `json:"default_sort"`
	Columns     []Column `json:"columns"`
}

// FieldKind selects the editor used for a form field.
type FieldKind string

const (
	FieldText    FieldKind = "text"
	FieldSelect  FieldKind = "select"
	FieldSuggest FieldKind = "suggest"
	// FieldStatic is displayed but never editable.
	FieldStatic FieldKind = "static"
)

// FormField describes one field on a detail form.
type FormField struct {
	Name     string    `json:"name"`
	LabelKey string    `json:"label_key"`
	Kind     FieldKind `json:"kind"`
	ReadOnly bool      `json:"read_only,omitempty"`
	// Options names a Reference or an Enum providing candidate values.
	Options string `json:"options,omitempty"`
}

// Section groups form fields under a heading.
type Section struct {
	ID       string      `json:"id"`
	TitleKey string      `json:"title_key"`
	Fields   []FormField `json:"fields"`
}

// EnumOption is a fixed candidate value whose label is translated.
type EnumOption struct {
	Value    string `json:"value"`
	LabelKey string `json:"label_key"`
}

// FormLayout describes the detail form of a record type.
type FormLayout struct {
	TitleField string                  `json:"title_field"`
	Sections   []Section               `json:"sections"`
	Enums      map[string][]EnumOption `json:"enums,omitempty"`
}

// Reference is reference data fetched before the document itself: the names
// of all records of another type, optionally filtered.
type Reference struct {
	Name    string            `json:"name"`
	Doctype string            `json:"doctype"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Descriptor is the complete metadata for one record type.
type Descriptor struct {
	Slug       string       `json:"slug"`
	Name       string       `json:"name"`
	I18nKey    string       `json:"i18n_key"`
	List       ListSettings `json:"list"`
	References []Reference  `json:"references,omitempty"`
	Form       *FormLayout  `json:"form,omitempty"`
}

// Column returns the column with the given field name.
func (d *Descriptor) Column(fieldName string) (Column, bool) {
	for _, c := range d.List.Columns {
		if c.FieldName == fieldName {
			return c, true
		}
	}
	return Column{}, false
}

// HasForm reports whether the record type has a detail view.
func (d *Descriptor) HasForm() bool {
	return d.Form != nil && len(d.Form.Sections) > 0
}

var placeholderRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Placeholders returns the field names referenced by a link template.
func Placeholders(template string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		out = append(out, m[1])
	}
	return out
}

// PlaceholderPattern is the pattern matching one `:field` placeholder.
func PlaceholderPattern() *regexp.Regexp { return placeholderRe }

// Validate checks the descriptor invariants.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(d.List.Columns) == 0 {
		errs = append(errs, errors.New("list has no columns"))
	}
	seen := make(map[string]bool, len(d.List.Columns))
	for _, c := range d.List.Columns {
		if seen[c.FieldName] {
			errs = append(errs, fmt.Errorf("duplicate column %q", c.FieldName))
		}
		seen[c.FieldName] = true
		if ph := Placeholders(c.LinkTemplate); len(ph) > 1 {
			errs = append(errs, fmt.Errorf("column %q: link %q has %d placeholders, at most one allowed", c.FieldName, c.LinkTemplate, len(ph)))
		}
		if c.Cell.Kind == CellBadge && len(c.Cell.Badges) == 0 {
			errs = append(errs, fmt.Errorf("column %q: badge cell without mappings", c.FieldName))
		}
	}
	if d.List.DefaultSort != "" && !seen[d.List.DefaultSort] {
		errs = append(errs, fmt.Errorf("default sort %q is not a column", d.List.DefaultSort))
	}

	if d.Form != nil {
		refs := make(map[string]bool, len(d.References))
		for _, r := range d.References {
			refs[r.Name] = true
		}
		for _, s := range d.Form.Sections {
			for _, f := range s.Fields {
				switch f.Kind {
				case FieldSelect, FieldSuggest:
					if _, isEnum := d.Form.Enums[f.Options]; !isEnum && !refs[f.Options] {
						errs = append(errs, fmt.Errorf("field %q: unknown options source %q", f.Name, f.Options))
					}
				case FieldText, FieldStatic:
				default:
					errs = append(errs, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind))
				}
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("doctype %s: %w", d.Slug, err)
	}
	return nil
}

// Registry holds the descriptors of all record types, keyed by slug.
type Registry struct {
	doctypes map[string]*Descriptor
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{doctypes: make(map[string]*Descriptor)}
}

// Register validates and adds a descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if d.Slug == "" {
		return errors.New("doctype: slug is required")
	}
	if _, dup := r.doctypes[d.Slug]; dup {
		return fmt.Errorf("doctype %s: already registered", d.Slug)
	}
	if d.List.DefaultSort == "" {
		d.List.DefaultSort = "name"
	}
	for i := range d.List.Columns {
		if d.List.Columns[i].Cell.Kind == "" {
			d.List.Columns[i].Cell.Kind = CellText
		}
	}
	if err := d.Validate(); err != nil {
		return err
	}
	r.doctypes[d.Slug] = d
	r.order = append(r.order, d.Slug)
	return nil
}

// Lookup returns the descriptor for a slug.
func (r *Registry) Lookup(slug string) (*Descriptor, bool) {
	d, ok := r.doctypes[slug]
	return d, ok
}

// Slugs returns all slugs in registration order.
func (r *Registry) Slugs() []string {
	return append([]string(nil), r.order...)
}

// All returns every descriptor in registration order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, r.doctypes[s])
	}
	return out
}
