package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateGet(t *testing.T) {
	m := NewManager(time.Hour, time.Hour)
	s := m.Create(nil, "ann@example.com", "Ann")

	got := m.Get(s.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Ann", got.FullName())
	assert.Equal(t, "ann@example.com", got.UserID())
	assert.Nil(t, m.Get("missing"))

	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))
}

func TestManager_Expiry(t *testing.T) {
	m := NewManager(time.Hour, time.Millisecond)
	s := m.Create(nil, "u", "U")
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, m.Get(s.ID), "idle session is dropped")
	assert.Equal(t, 0, m.Len())

	m = NewManager(time.Millisecond, time.Hour)
	m.Create(nil, "a", "A")
	m.Create(nil, "b", "B")
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, m.Cleanup())
	assert.Equal(t, 0, m.Len())
}

func TestSession_Views(t *testing.T) {
	s := NewSession(nil, "u", "U")
	s.SetView("Supplier/SUP-001", 42)
	v, ok := s.View("Supplier/SUP-001")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	s.DropView("Supplier/SUP-001")
	_, ok = s.View("Supplier/SUP-001")
	assert.False(t, ok)
}

func TestRequireAuth(t *testing.T) {
	m := NewManager(time.Hour, time.Hour)
	var seen *Session
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/suppliers/list?page=2", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fsuppliers%2Flist%3Fpage%3D2", rec.Header().Get("Location"))

	s := m.Create(nil, "u", "U")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: s.ID})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, s, seen)
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                     "/",
		"/suppliers/list":      "/suppliers/list",
		"//evil.example":       "/",
		"https://evil.example": "/",
		"/\\evil.example":      "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeNext(in), in)
	}
	assert.Equal(t, "/login", LoginURL("/"))
}

func TestCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, &Session{ID: "abc"}, false)
	ClearCookie(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

func TestSession_DropViews(t *testing.T) {
	s := NewSession(nil, "u", "U")
	s.SetView("Supplier/SUP-001", 1)
	s.SetView("Supplier/SUP-002", 2)
	s.SetView("Customer/C-1", 3)
	s.DropViews("Supplier/")
	_, ok := s.View("Supplier/SUP-001")
	assert.False(t, ok)
	_, ok = s.View("Customer/C-1")
	assert.True(t, ok)
}
