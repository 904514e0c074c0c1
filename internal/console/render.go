package console

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// langCookie remembers an explicit language choice.
const langCookie = "console_lang"

var pageNames = []string{"login", "cockpit", "list", "detail", "error"}

type pages struct {
	byName map[string]*template.Template
}

func parsePages() (*pages, error) {
	funcs := template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}
	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

// page is the data every template receives.
type page struct {
	T         *i18n.Translator
	Lang      string
	Languages []i18n.Language
	User      string
	Title     string
	Path      string
	Nav       []navLink
	Content   any
}

type navLink struct {
	Title  string
	URL    string
	Active bool
}

func (c *Console) translator(r *http.Request) *i18n.Translator {
	choice := ""
	if ck, err := r.Cookie(langCookie); err == nil {
		choice = ck.Value
	}
	accept := r.Header.Get("Accept-Language")
	if choice == "" && accept == "" {
		choice = c.defaultLang
	}
	return c.bundle.Translator(c.bundle.Match(accept, choice))
}

func (c *Console) newPage(r *http.Request, title string, content any) page {
	tr := c.translator(r)
	p := page{
		T:         tr,
		Lang:      tr.Lang(),
		Languages: c.bundle.Languages(),
		Title:     title,
		Path:      r.URL.RequestURI(),
		Content:   content,
	}
	if s := auth.FromContext(r.Context()); s != nil {
		p.User = s.FullName()
		active := ""
		if d := descriptorFrom(r.Context()); d != nil {
			active = d.Slug
		}
		for _, d := range c.reg.All() {
			p.Nav = append(p.Nav, navLink{
				Title:  tr.Plural(d.I18nKey, 2),
				URL:    "/" + d.Slug + "/list",
				Active: d.Slug == active,
			})
		}
	}
	return p
}

func (c *Console) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	t, ok := c.pages.byName[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		c.log.ErrorContext(r.Context(), "render failed", "page", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// errorView is the error component: localized title and description keyed
// by the error code.
type errorView struct {
	Code        int    `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

func newErrorView(tr *i18n.Translator, be *backend.Error) errorView {
	code := strconv.Itoa(be.Code())
	prefix := "errors." + code
	if !tr.Has(prefix + ".title") {
		prefix = "errors.default"
	}
	return errorView{
		Code:        be.Code(),
		Title:       tr.T(prefix + ".title"),
		Description: tr.T(prefix + ".description"),
		Detail:      be.Description,
	}
}

func errorStatus(be *backend.Error) int {
	switch be.Kind {
	case backend.KindHTTPStatus:
		if be.Status >= 400 {
			return be.Status
		}
		return http.StatusBadGateway
	case backend.KindNoResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (c *Console) renderError(w http.ResponseWriter, r *http.Request, be *backend.Error) {
	tr := c.translator(r)
	ev := newErrorView(tr, be)
	c.render(w, r, errorStatus(be), "error", c.newPage(r, ev.Title, ev))
}
