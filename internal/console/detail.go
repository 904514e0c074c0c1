package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/erpconsole/internal/audit"
	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/editsession"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
	"github.com/matthewbaird/erpconsole/internal/field"
	"github.com/matthewbaird/erpconsole/internal/i18n"
)

// detailView is a mounted detail page: the document's edit session and its
// form. It lives in the console session until the user leaves for the list.
type detailView struct {
	desc    *doctype.Descriptor
	name    string
	form    *field.Form
	session *editsession.Session
	meta    backend.Metadata
}

func detailKey(d *doctype.Descriptor, name string) string {
	return d.Name + "/" + name
}

func detailURL(d *doctype.Descriptor, name string) string {
	return "/" + d.Slug + "/" + url.PathEscape(name)
}

// mount fetches the reference data in declared order, then the document,
// and builds the edit session around it.
func (c *Console) mount(ctx context.Context, s *auth.Session, d *doctype.Descriptor, name string) (*detailView, error) {
	refs := make(map[string][]string, len(d.References))
	for _, ref := range d.References {
		names, err := s.Backend.GetAll(ctx, ref.Doctype, ref.Filters)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", ref.Name, err)
		}
		refs[ref.Name] = names
	}

	doc, err := s.Backend.FetchDocument(ctx, d.Name, name)
	if err != nil {
		return nil, err
	}
	fields, md := backend.SplitMetadata(doc)

	dv := &detailView{desc: d, name: name, meta: md}
	dv.session = editsession.New(d.Name, fields, editsession.PersisterFunc(func(ctx context.Context, doc editsession.Document) error {
		changed := dv.session.ChangedFields()
		if err := s.Backend.SaveDocument(ctx, d.Name, doc); err != nil {
			return err
		}
		c.bus.Publish(eventbus.DocumentSavedEvent(s.UserID(), d.Name, name, changed))
		return nil
	}))
	dv.form, err = field.NewForm(d.Form, dv.session, refs, func(fieldName string, value any) {
		c.log.Debug("field saved", "doctype", d.Name, "name", name, "field", fieldName)
	})
	if err != nil {
		return nil, err
	}
	return dv, nil
}

// openDetail returns the mounted view of the requested record, mounting it
// on first use or when reload is set. On failure the response is written
// and nil is returned.
func (c *Console) openDetail(w http.ResponseWriter, r *http.Request, reload bool) *detailView {
	d := descriptorFrom(r.Context())
	s := auth.FromContext(r.Context())
	name := pathParam(r, "name")
	key := detailKey(d, name)

	if !reload {
		if v, ok := s.View(key); ok {
			if dv, ok := v.(*detailView); ok {
				return dv
			}
		}
	}
	dv, err := c.mount(r.Context(), s, d, name)
	if err != nil {
		s.DropView(key)
		c.fail(w, r, err)
		return nil
	}
	s.SetView(key, dv)
	return dv
}

type optionView struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type fieldView struct {
	field.View
	Label      string
	Text       string
	Options    []optionView
	EditURL    string
	CommitURL  string
	CancelURL  string
	SuggestURL string
}

type sectionView struct {
	ID     string
	Title  string
	Fields []fieldView
}

type versionView struct {
	Owner    string
	Creation string
}

type auditView struct {
	When string
	Text string
}

type detailModel struct {
	Heading  string
	Title    string
	Name     string
	URL      string
	ListURL  string
	ListName string
	NewURL   string
	EditMode bool
	Modified bool
	Error    *errorView
	Sections []sectionView
	Comments int
	Tags     []string
	Versions []versionView
	Audit    []auditView
}

func itemLabel(tr *i18n.Translator, it field.Item) string {
	switch {
	case it.LabelKey != "":
		return tr.T(it.LabelKey)
	case it.Label != "":
		return it.Label
	}
	return it.Value
}

func (c *Console) buildDetailModel(ctx context.Context, tr *i18n.Translator, dv *detailView) detailModel {
	d := dv.desc
	base := detailURL(d, dv.name)
	m := detailModel{
		Heading:  tr.Plural(d.I18nKey, 1),
		Title:    dv.form.Title(),
		Name:     dv.name,
		URL:      base,
		ListURL:  "/" + d.Slug + "/list",
		ListName: tr.Plural(d.I18nKey, 2),
		NewURL:   newRecordURL(c.backendURL, d.Name),
		EditMode: dv.session.EditMode(),
		Modified: dv.session.IsModified(),
		Comments: dv.meta.TotalComments,
		Tags:     dv.meta.Tags,
	}
	if m.Title == "" {
		m.Title = dv.name
	}

	for _, sec := range dv.form.Sections() {
		sv := sectionView{ID: sec.ID, Title: tr.T(sec.TitleKey)}
		for _, ed := range sec.Editors {
			v := ed.View()
			fv := fieldView{
				View:      v,
				Label:     tr.T(v.LabelKey),
				Text:      v.Display,
				EditURL:   base + "/fields/" + url.PathEscape(v.Name) + "/edit",
				CommitURL: base + "/fields/" + url.PathEscape(v.Name) + "/commit",
				CancelURL: base + "/fields/" + url.PathEscape(v.Name) + "/cancel",
			}
			if v.DisplayKey != "" {
				fv.Text = tr.T(v.DisplayKey)
			}
			if v.Kind == doctype.FieldSuggest {
				fv.SuggestURL = base + "/fields/" + url.PathEscape(v.Name) + "/suggest"
			}
			for _, it := range v.Items {
				fv.Options = append(fv.Options, optionView{
					Value:    it.Value,
					Label:    itemLabel(tr, it),
					Selected: it.Value == v.Input,
				})
			}
			sv.Fields = append(sv.Fields, fv)
		}
		m.Sections = append(m.Sections, sv)
	}

	for _, ver := range dv.meta.Versions {
		m.Versions = append(m.Versions, versionView{Owner: ver.Owner, Creation: ver.Creation})
	}

	entries, err := c.audit.ByDocument(ctx, d.Name, dv.name, audit.DefaultLimit)
	if err != nil {
		c.log.WarnContext(ctx, "audit lookup failed", "doctype", d.Name, "name", dv.name, "err", err)
	}
	for _, e := range entries {
		m.Audit = append(m.Audit, auditView{
			When: e.OccurredAt.Local().Format("2006-01-02 15:04"),
			Text: tr.T("phrases.changed_by", "user", e.Actor, "fields", strings.Join(e.Fields, ", ")),
		})
	}
	return m
}

func (c *Console) renderDetail(w http.ResponseWriter, r *http.Request, status int, dv *detailView, ev *errorView) {
	tr := c.translator(r)
	m := c.buildDetailModel(r.Context(), tr, dv)
	m.Error = ev
	c.render(w, r, status, "detail", c.newPage(r, m.Title, m))
}

// detailFailed renders the detail page with an inline error. Input errors
// are 400s; backend failures keep their status and a forbidden answer ends
// the session.
func (c *Console) detailFailed(w http.ResponseWriter, r *http.Request, dv *detailView, err error) {
	var be *backend.Error
	switch {
	case errors.Is(err, field.ErrReadOnly), errors.Is(err, field.ErrUnknownItem), errors.Is(err, field.ErrNotEditing):
		be = backend.StatusError(http.StatusBadRequest, err.Error())
	default:
		be = backend.AsError(err)
		if backend.IsForbidden(be) {
			c.forceLogout(w, r)
			return
		}
		c.log.WarnContext(r.Context(), "detail action failed", "doctype", dv.desc.Name, "name", dv.name, "code", be.Code(), "err", err)
	}
	ev := newErrorView(c.translator(r), be)
	c.renderDetail(w, r, errorStatus(be), dv, &ev)
}

func (c *Console) detail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dv := c.openDetail(w, r, q.Get("reload") == "1")
	if dv == nil {
		return
	}
	if q.Get("edit") == "1" {
		dv.session.EnterEdit()
	}
	c.renderDetail(w, r, http.StatusOK, dv, nil)
}

func (c *Console) backToDetail(w http.ResponseWriter, r *http.Request, dv *detailView, anchor string) {
	target := detailURL(dv.desc, dv.name)
	if anchor != "" {
		target += "#field-" + anchor
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (c *Console) detailEdit(w http.ResponseWriter, r *http.Request) {
	if dv := c.openDetail(w, r, false); dv != nil {
		dv.session.EnterEdit()
		c.backToDetail(w, r, dv, "")
	}
}

func (c *Console) detailCancel(w http.ResponseWriter, r *http.Request) {
	if dv := c.openDetail(w, r, false); dv != nil {
		dv.session.Cancel()
		dv.session.ExitEdit()
		c.backToDetail(w, r, dv, "")
	}
}

func (c *Console) detailSave(w http.ResponseWriter, r *http.Request) {
	dv := c.openDetail(w, r, false)
	if dv == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		c.detailFailed(w, r, dv, backend.StatusError(http.StatusBadRequest, err.Error()))
		return
	}
	if err := dv.form.Submit(r.Context(), formValues(r)); err != nil {
		c.detailFailed(w, r, dv, err)
		return
	}
	c.backToDetail(w, r, dv, "")
}

// editorFor resolves the {field} parameter of a mounted view.
func (c *Console) editorFor(w http.ResponseWriter, r *http.Request) (*detailView, field.Editor) {
	dv := c.openDetail(w, r, false)
	if dv == nil {
		return nil, nil
	}
	ed, ok := dv.form.Editor(chi.URLParam(r, "field"))
	if !ok {
		c.renderError(w, r, backend.NotFound())
		return nil, nil
	}
	return dv, ed
}

func (c *Console) fieldEdit(w http.ResponseWriter, r *http.Request) {
	dv, ed := c.editorFor(w, r)
	if ed == nil {
		return
	}
	if err := ed.BeginEdit(); err != nil {
		c.detailFailed(w, r, dv, err)
		return
	}
	c.backToDetail(w, r, dv, ed.Name())
}

func (c *Console) fieldCommit(w http.ResponseWriter, r *http.Request) {
	dv, ed := c.editorFor(w, r)
	if ed == nil {
		return
	}
	if err := ed.SetPending(r.PostFormValue("value")); err != nil {
		c.detailFailed(w, r, dv, err)
		return
	}
	if err := ed.Commit(r.Context()); err != nil {
		c.detailFailed(w, r, dv, err)
		return
	}
	c.backToDetail(w, r, dv, ed.Name())
}

func (c *Console) fieldCancel(w http.ResponseWriter, r *http.Request) {
	dv, ed := c.editorFor(w, r)
	if ed == nil {
		return
	}
	ed.Cancel()
	c.backToDetail(w, r, dv, ed.Name())
}

func (c *Console) fieldSuggest(w http.ResponseWriter, r *http.Request) {
	d := descriptorFrom(r.Context())
	s := auth.FromContext(r.Context())
	v, ok := s.View(detailKey(d, pathParam(r, "name")))
	dv, _ := v.(*detailView)
	if !ok || dv == nil {
		writeError(w, http.StatusNotFound, "not_mounted", "record is not open")
		return
	}
	ed, _ := dv.form.Editor(chi.URLParam(r, "field"))
	sg, ok := ed.(*field.Suggest)
	if !ok {
		writeError(w, http.StatusNotFound, "not_suggest", "field offers no suggestions")
		return
	}
	tr := c.translator(r)
	items := sg.Suggestions(r.URL.Query().Get("q"))
	out := make([]optionView, 0, len(items))
	for _, it := range items {
		out = append(out, optionView{Value: it.Value, Label: itemLabel(tr, it)})
	}
	writeJSON(w, http.StatusOK, out)
}
