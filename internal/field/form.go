package field

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/editsession"
)

// Section is a titled group of editors.
type Section struct {
	ID       string
	TitleKey string
	Editors  []Editor
}

// Form is the set of editors of one detail view, bound to one session.
type Form struct {
	layout   *doctype.FormLayout
	session  *editsession.Session
	sections []Section
	byName   map[string]Editor
}

// NewForm builds the editors described by layout. Option sources are
// resolved from the layout's enums first, then from refs, which maps a
// reference name to the record names fetched for it.
func NewForm(layout *doctype.FormLayout, s *editsession.Session, refs map[string][]string, onSave OnSave) (*Form, error) {
	if layout == nil {
		return nil, errors.New("form: no layout")
	}
	f := &Form{
		layout:  layout,
		session: s,
		byName:  make(map[string]Editor),
	}
	for _, sec := range layout.Sections {
		out := Section{ID: sec.ID, TitleKey: sec.TitleKey}
		for _, ff := range sec.Fields {
			var ed Editor
			switch ff.Kind {
			case doctype.FieldSelect:
				items, err := f.items(ff, refs)
				if err != nil {
					return nil, err
				}
				ed = NewSelect(ff, s, items, onSave)
			case doctype.FieldSuggest:
				items, err := f.items(ff, refs)
				if err != nil {
					return nil, err
				}
				ed = NewSuggest(ff, s, items, onSave)
			default:
				ed = NewText(ff, s, onSave)
			}
			out.Editors = append(out.Editors, ed)
			f.byName[ff.Name] = ed
		}
		f.sections = append(f.sections, out)
	}
	return f, nil
}

func (f *Form) items(ff doctype.FormField, refs map[string][]string) ([]Item, error) {
	if opts, ok := f.layout.Enums[ff.Options]; ok {
		items := make([]Item, 0, len(opts))
		for _, o := range opts {
			items = append(items, Item{Value: o.Value, LabelKey: o.LabelKey})
		}
		return items, nil
	}
	names, ok := refs[ff.Options]
	if !ok {
		return nil, fmt.Errorf("form: field %q: no data for options %q", ff.Name, ff.Options)
	}
	items := make([]Item, 0, len(names))
	for _, n := range names {
		items = append(items, Item{Value: n, Label: n})
	}
	return items, nil
}

// Sections returns the editors grouped as laid out.
func (f *Form) Sections() []Section { return f.sections }

// Session returns the edit session the form is bound to.
func (f *Form) Session() *editsession.Session { return f.session }

// Editor returns the editor of a field.
func (f *Form) Editor(name string) (Editor, bool) {
	e, ok := f.byName[name]
	return e, ok
}

// Title is the working value of the layout's title field.
func (f *Form) Title() string {
	if f.layout.TitleField == "" {
		return ""
	}
	v, _ := f.session.Field(f.layout.TitleField)
	return Format(v)
}

// Apply writes a form-wide submission into the session working copy. Fields
// absent from values are left alone; read-only fields are skipped. Every
// invalid value is reported, valid ones are still applied.
func (f *Form) Apply(values map[string]string) error {
	if !f.session.EditMode() {
		return ErrNotEditing
	}
	var errs []error
	for _, sec := range f.sections {
		for _, ed := range sec.Editors {
			v, ok := values[ed.Name()]
			if !ok {
				continue
			}
			if err := ed.SetPending(v); err != nil && !errors.Is(err, ErrReadOnly) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Submit applies values, saves the session and leaves form-wide edit mode.
// On error the session stays in edit mode with the submitted values.
func (f *Form) Submit(ctx context.Context, values map[string]string) error {
	if err := f.Apply(values); err != nil {
		return err
	}
	if err := f.session.Save(ctx); err != nil {
		return err
	}
	f.session.ExitEdit()
	return nil
}
