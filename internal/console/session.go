package console

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
)

type loginView struct {
	Username string
	Next     string
	Error    string
}

func (c *Console) loginPage(w http.ResponseWriter, r *http.Request) {
	next := auth.SafeNext(r.URL.Query().Get("next"))
	if c.sessions.Lookup(r) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	tr := c.translator(r)
	c.render(w, r, http.StatusOK, "login", c.newPage(r, tr.T("words.login"), loginView{Next: next}))
}

func (c *Console) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.renderError(w, r, backend.StatusError(http.StatusBadRequest, err.Error()))
		return
	}
	tr := c.translator(r)
	username := strings.TrimSpace(r.PostFormValue("username"))
	view := loginView{Username: username, Next: auth.SafeNext(r.PostFormValue("next"))}

	client, err := backend.New(c.backendURL, c.timeout)
	if err != nil {
		c.renderError(w, r, backend.AsError(err))
		return
	}
	fullName, err := client.Login(r.Context(), username, r.PostFormValue("password"))
	switch {
	case err == nil:
	case backend.IsUnauthorized(err):
		view.Error = tr.T("phrases.unauthorized")
		c.render(w, r, http.StatusUnauthorized, "login", c.newPage(r, tr.T("words.login"), view))
		return
	case backend.IsForbidden(err):
		c.forceLogout(w, r)
		return
	default:
		ev := newErrorView(tr, backend.AsError(err))
		view.Error = ev.Title + ": " + ev.Description
		c.log.WarnContext(r.Context(), "login failed", "user", username, "err", err)
		c.render(w, r, errorStatus(backend.AsError(err)), "login", c.newPage(r, tr.T("words.login"), view))
		return
	}

	if fullName == "" {
		if u, err := client.CurrentUser(r.Context()); err == nil {
			fullName = u.FullName
		}
	}
	if fullName == "" {
		fullName = username
	}

	// Replace any session this browser still had.
	if old := c.sessions.Lookup(r); old != nil {
		c.sessions.Remove(old.ID)
	}
	s := c.sessions.Create(client, username, fullName)
	auth.SetCookie(w, s, c.secure)
	c.bus.Publish(eventbus.NewEvent(eventbus.UserLoggedIn, username))
	c.log.InfoContext(r.Context(), "user logged in", "user", username)
	http.Redirect(w, r, view.Next, http.StatusSeeOther)
}

func (c *Console) logout(w http.ResponseWriter, r *http.Request) {
	s := auth.FromContext(r.Context())
	if err := s.Backend.Logout(r.Context()); err != nil {
		c.log.WarnContext(r.Context(), "backend logout failed", "user", s.UserID(), "err", err)
	}
	c.sessions.Remove(s.ID)
	auth.ClearCookie(w)
	c.bus.Publish(eventbus.NewEvent(eventbus.UserLoggedOut, s.UserID()))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (c *Console) setLanguage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !c.bundle.Supports(code) {
		c.renderError(w, r, backend.NotFound())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     langCookie,
		Value:    code,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, localReferer(r), http.StatusSeeOther)
}

type cockpitView struct {
	Greeting string
	Links    []navLink
}

func (c *Console) cockpit(w http.ResponseWriter, r *http.Request) {
	s := auth.FromContext(r.Context())
	tr := c.translator(r)
	p := c.newPage(r, tr.T("words.cockpit"), nil)
	p.Content = cockpitView{
		Greeting: tr.T("pages.cockpit.greeting", "name", s.FullName()),
		Links:    p.Nav,
	}
	c.render(w, r, http.StatusOK, "cockpit", p)
}
