// Package console is the browser-facing surface of the ERP console: login,
// the cockpit, list views (HTML and a live websocket channel) and detail
// forms backed by edit sessions.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/erpconsole/internal/audit"
	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
	"github.com/matthewbaird/erpconsole/internal/i18n"
)

// Options wires a Console to its collaborators.
type Options struct {
	Registry        *doctype.Registry
	Sessions        *auth.Manager
	Bundle          *i18n.Bundle
	Bus             *eventbus.Bus
	Audit           audit.Store
	Logger          *slog.Logger
	BackendURL      string
	BackendTimeout  time.Duration
	DefaultLanguage string
	MinPerPage      int
	SecureCookies   bool
}

// Console serves the console's HTTP routes.
type Console struct {
	reg         *doctype.Registry
	sessions    *auth.Manager
	bundle      *i18n.Bundle
	bus         *eventbus.Bus
	audit       audit.Store
	log         *slog.Logger
	backendURL  string
	timeout     time.Duration
	defaultLang string
	minPerPage  int
	secure      bool
	pages       *pages
}

// New validates opts and parses the page templates.
func New(opts Options) (*Console, error) {
	if opts.Registry == nil || opts.Sessions == nil || opts.Bundle == nil {
		return nil, errors.New("console: registry, sessions and bundle are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewMemoryStore()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New(0, opts.Logger)
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = i18n.Fallback
	}
	// Validated here so that login fails fast instead of per user.
	if _, err := backend.New(opts.BackendURL, opts.BackendTimeout); err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}
	p, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Console{
		reg:         opts.Registry,
		sessions:    opts.Sessions,
		bundle:      opts.Bundle,
		bus:         opts.Bus,
		audit:       opts.Audit,
		log:         opts.Logger,
		backendURL:  opts.BackendURL,
		timeout:     opts.BackendTimeout,
		defaultLang: opts.DefaultLanguage,
		minPerPage:  opts.MinPerPage,
		secure:      opts.SecureCookies,
		pages:       p,
	}, nil
}

// Routes returns the console router.
func (c *Console) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/login", c.loginPage)
	r.Post("/login", c.login)
	r.Get("/lang/{code}", c.setLanguage)

	r.Group(func(r chi.Router) {
		r.Use(c.sessions.RequireAuth)
		r.Post("/logout", c.logout)
		r.Get("/", c.cockpit)

		r.Route("/{slug}", func(r chi.Router) {
			r.Use(c.withDescriptor)
			r.Get("/list", c.list)
			r.Get("/list/ws", c.live)

			r.Route("/{name}", func(r chi.Router) {
				r.Use(c.withForm)
				r.Get("/", c.detail)
				r.Post("/edit", c.detailEdit)
				r.Post("/cancel", c.detailCancel)
				r.Post("/save", c.detailSave)
				r.Post("/fields/{field}/edit", c.fieldEdit)
				r.Post("/fields/{field}/commit", c.fieldCommit)
				r.Post("/fields/{field}/cancel", c.fieldCancel)
				r.Get("/fields/{field}/suggest", c.fieldSuggest)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		c.renderError(w, r, backend.NotFound())
	})
	return r
}

type descriptorKey struct{}

// withDescriptor resolves the {slug} parameter; unknown slugs are 404.
func (c *Console) withDescriptor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := c.reg.Lookup(chi.URLParam(r, "slug"))
		if !ok {
			c.renderError(w, r, backend.NotFound())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), descriptorKey{}, d)))
	})
}

// withForm restricts detail routes to record types with a detail form.
func (c *Console) withForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !descriptorFrom(r.Context()).HasForm() {
			c.renderError(w, r, backend.NotFound())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func descriptorFrom(ctx context.Context) *doctype.Descriptor {
	d, _ := ctx.Value(descriptorKey{}).(*doctype.Descriptor)
	return d
}

// fail routes a view failure: a forbidden answer ends the session, anything
// else renders the error component.
func (c *Console) fail(w http.ResponseWriter, r *http.Request, err error) {
	be := backend.AsError(err)
	if backend.IsForbidden(be) {
		c.forceLogout(w, r)
		return
	}
	c.log.WarnContext(r.Context(), "view failed", "path", r.URL.Path, "code", be.Code(), "err", err)
	c.renderError(w, r, be)
}

// forceLogout drops the console session and returns to the login page.
func (c *Console) forceLogout(w http.ResponseWriter, r *http.Request) {
	if s := c.sessions.Lookup(r); s != nil {
		c.sessions.Remove(s.ID)
		c.bus.Publish(eventbus.NewEvent(eventbus.UserLoggedOut, s.UserID()))
	}
	auth.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
