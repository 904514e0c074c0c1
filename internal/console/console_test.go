package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpconsole/internal/audit"
	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/eventbus"
	"github.com/matthewbaird/erpconsole/internal/i18n"
)

const supplierCount = 23

// fakeERP answers the handful of ERP endpoints the console calls.
type fakeERP struct {
	mu        sync.Mutex
	forbidden bool
	saved     []map[string]any
	doc       map[string]any
}

func newFakeERP() *fakeERP {
	return &fakeERP{doc: map[string]any{
		"name":           "SUP-001",
		"supplier_name":  "Acme",
		"supplier_type":  "Company",
		"supplier_group": "Services",
		"vat_status":     "Liable",
		"tax_id":         "BE0123",
		"tax_category":   nil,
		"payment_terms":  "30 days",
	}}
}

func (f *fakeERP) setField(name string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc[name] = v
}

func (f *fakeERP) setForbidden(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forbidden = v
}

func (f *fakeERP) savedDocs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.saved...)
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	if r.URL.Path == "/api/method/login" {
		r.ParseForm()
		if r.PostFormValue("pwd") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			reply(map[string]string{"message": "Invalid login credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "erp-session", Path: "/"})
		reply(map[string]string{"full_name": "Ann Admin"})
		return
	}
	if f.forbidden {
		w.WriteHeader(http.StatusForbidden)
		reply(map[string]string{"exception": "frappe.exceptions.PermissionError"})
		return
	}

	switch r.URL.Path {
	case "/api/method/logout":
		reply(map[string]any{})
	case "/api/method/frappe.desk.reportview.get":
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("start"))
		size, _ := strconv.Atoi(q.Get("page_length"))
		var values [][]any
		for i := start; i < start+size && i < supplierCount; i++ {
			values = append(values, []any{fmt.Sprintf("SUP-%03d", i+1), fmt.Sprintf("Supplier %d", i+1), "", float64(i % 2)})
		}
		if values == nil {
			reply(map[string]any{"message": []any{}})
			return
		}
		reply(map[string]any{"message": map[string]any{
			"keys":   []string{"name", "supplier_name", "tax_id", "disabled"},
			"values": values,
		}})
	case "/api/method/frappe.desk.reportview.get_count":
		reply(map[string]int{"message": supplierCount})
	case "/api/method/frappe.desk.form.load.getdoc":
		if r.URL.Query().Get("name") != "SUP-001" {
			w.WriteHeader(http.StatusNotFound)
			reply(map[string]string{"message": "not found"})
			return
		}
		reply(map[string]any{
			"docs":    []any{f.doc},
			"docinfo": map[string]any{"comments": []any{map[string]any{}}, "tags": "vip"},
		})
	case "/api/method/frappe.desk.form.save.savedocs":
		r.ParseForm()
		var doc map[string]any
		json.Unmarshal([]byte(r.PostFormValue("doc")), &doc)
		f.saved = append(f.saved, doc)
		reply(map[string]any{"docs": []any{doc}})
	case "/api/resource/Supplier Group":
		reply(map[string]any{"data": []any{map[string]string{"name": "Raw Material"}, map[string]string{"name": "Services"}}})
	case "/api/resource/Tax Category":
		reply(map[string]any{"data": []any{map[string]string{"name": "Domestic"}}})
	case "/api/resource/Price List":
		reply(map[string]any{"data": []any{map[string]string{"name": "Standard Buying"}}})
	default:
		w.WriteHeader(http.StatusNotFound)
		reply(map[string]string{"message": "unknown endpoint " + r.URL.Path})
	}
}

type testEnv struct {
	erp      *fakeERP
	srv      *httptest.Server
	sessions *auth.Manager
	audit    audit.Store
	client   *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	erp := newFakeERP()
	erpSrv := httptest.NewServer(erp)
	t.Cleanup(erpSrv.Close)

	reg, err := doctype.Default()
	require.NoError(t, err)
	bundle, err := i18n.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := audit.NewMemoryStore()
	bus := eventbus.New(16, logger)
	bus.Subscribe("audit", audit.NewConsumer(store))
	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)
	t.Cleanup(func() {
		cancel()
		bus.Stop()
	})

	sessions := auth.NewManager(time.Hour, time.Hour)
	c, err := New(Options{
		Registry:       reg,
		Sessions:       sessions,
		Bundle:         bundle,
		Bus:            bus,
		Audit:          store,
		Logger:         logger,
		BackendURL:     erpSrv.URL,
		BackendTimeout: 5 * time.Second,
		MinPerPage:     5,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(c.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{erp: erp, srv: srv, sessions: sessions, audit: store, client: client}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, _ := e.post(t, "/login", url.Values{"username": {"ann@example.com"}, "password": {"secret"}, "next": {"/suppliers/list"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/suppliers/list", resp.Header.Get("Location"))
	require.Equal(t, 1, e.sessions.Len())
}

func TestRoutes_RequireLogin(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.get(t, "/suppliers/list")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fsuppliers%2Flist", resp.Header.Get("Location"))

	resp, _ = e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.post(t, "/login", url.Values{"username": {"ann@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Wrong username or password.")
	assert.Equal(t, 0, e.sessions.Len())
}

func TestCockpit(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	resp, body := e.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Ann Admin")
	assert.Contains(t, body, `href="/suppliers/list"`)
}

func TestList_Page(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp, body := e.get(t, "/suppliers/list?page=2&per_page=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "SUP-011")
	assert.Contains(t, body, "SUP-020")
	assert.NotContains(t, body, "SUP-021")
	assert.Contains(t, body, "Showing 11 to 20 of 23")
	assert.Contains(t, body, `href="/suppliers/SUP-011"`)
	assert.Contains(t, body, "Enabled")
	assert.Contains(t, body, "Disabled")
}

func TestList_PageBeyondLastIsCorrected(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	_, body := e.get(t, "/suppliers/list?page=9&per_page=10")
	assert.Contains(t, body, "SUP-023")
	assert.Contains(t, body, "Showing 21 to 23 of 23")
}

func TestList_Errors(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp, _ := e.get(t, "/nope/list")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.get(t, "/suppliers/list?sort=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForbiddenEndsSession(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.erp.setForbidden(true)

	resp, _ := e.get(t, "/suppliers/list")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 0, e.sessions.Len())
}

func TestDetail_ViewAndMissing(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	resp, body := e.get(t, "/suppliers/SUP-001")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "Company")
	assert.Contains(t, body, "30 days")
	assert.Contains(t, body, "vip")

	resp, _ = e.get(t, "/suppliers/SUP-404")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.get(t, "/customer/CUST-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "customer has no detail form")
}

func TestDetail_EditAndSave(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.get(t, "/suppliers/SUP-001")

	resp, _ := e.post(t, "/suppliers/SUP-001/edit", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := e.get(t, "/suppliers/SUP-001")
	assert.Contains(t, body, `action="/suppliers/SUP-001/save"`)

	resp, _ = e.post(t, "/suppliers/SUP-001/save", url.Values{
		"name":          {"HACKED"},
		"supplier_name": {"Acme Ltd"},
		"supplier_type": {"Individual"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	saved := e.erp.savedDocs()
	require.Len(t, saved, 1)
	assert.Equal(t, "Acme Ltd", saved[0]["supplier_name"])
	assert.Equal(t, "Individual", saved[0]["supplier_type"])
	assert.Equal(t, "SUP-001", saved[0]["name"], "read-only field is not written")
	assert.Equal(t, "Supplier", saved[0]["doctype"])

	require.Eventually(t, func() bool {
		entries, _ := e.audit.ByDocument(context.Background(), "Supplier", "SUP-001", 10)
		return len(entries) == 1
	}, time.Second, 10*time.Millisecond)
	entries, _ := e.audit.ByDocument(context.Background(), "Supplier", "SUP-001", 10)
	assert.Equal(t, []string{"supplier_name", "supplier_type"}, entries[0].Fields)
	assert.Equal(t, "ann@example.com", entries[0].Actor)

	_, body = e.get(t, "/suppliers/SUP-001")
	assert.Contains(t, body, "Acme Ltd")
	assert.Contains(t, body, "Recent changes")
	assert.NotContains(t, body, `action="/suppliers/SUP-001/save"`)
}

func TestDetail_SaveUntouchedFormDoesNotPersist(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.post(t, "/suppliers/SUP-001/edit", nil)

	// What the browser posts for the unchanged form: empty strings for the
	// null tax_category and the absent default_price_list.
	resp, _ := e.post(t, "/suppliers/SUP-001/save", url.Values{
		"name":               {"SUP-001"},
		"supplier_name":      {"Acme"},
		"supplier_type":      {"Company"},
		"supplier_group":     {"Services"},
		"vat_status":         {"Liable"},
		"tax_id":             {"BE0123"},
		"tax_category":       {""},
		"default_price_list": {""},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, e.erp.savedDocs())

	_, body := e.get(t, "/suppliers/SUP-001")
	assert.NotContains(t, body, `action="/suppliers/SUP-001/save"`)
	assert.NotContains(t, body, "(Modified)")
}

func TestDetail_SelectKeepsValueOutsideItems(t *testing.T) {
	e := newTestEnv(t)
	e.erp.setField("supplier_type", "Partnership")
	e.login(t)
	e.post(t, "/suppliers/SUP-001/edit", nil)

	_, body := e.get(t, "/suppliers/SUP-001")
	assert.Contains(t, body, `<option value="Partnership" selected>Partnership</option>`)

	resp, _ := e.post(t, "/suppliers/SUP-001/save", url.Values{
		"supplier_name": {"Acme Ltd"},
		"supplier_type": {"Partnership"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	saved := e.erp.savedDocs()
	require.Len(t, saved, 1)
	assert.Equal(t, "Partnership", saved[0]["supplier_type"])
	assert.Equal(t, "Acme Ltd", saved[0]["supplier_name"])
}

func TestDetail_InvalidSelectStaysInEdit(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.post(t, "/suppliers/SUP-001/edit", nil)

	resp, body := e.post(t, "/suppliers/SUP-001/save", url.Values{"supplier_type": {"Bogus"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `action="/suppliers/SUP-001/save"`)
	assert.Empty(t, e.erp.savedDocs())

	resp, _ = e.post(t, "/suppliers/SUP-001/cancel", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = e.get(t, "/suppliers/SUP-001")
	assert.NotContains(t, body, `action="/suppliers/SUP-001/save"`)
}

func TestField_EditCommit(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.get(t, "/suppliers/SUP-001")

	resp, _ := e.post(t, "/suppliers/SUP-001/fields/tax_id/edit", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/suppliers/SUP-001#field-tax_id", resp.Header.Get("Location"))

	_, body := e.get(t, "/suppliers/SUP-001")
	assert.Contains(t, body, `action="/suppliers/SUP-001/fields/tax_id/commit"`)

	resp, _ = e.post(t, "/suppliers/SUP-001/fields/tax_id/commit", url.Values{"value": {"BE0999"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	saved := e.erp.savedDocs()
	require.Len(t, saved, 1)
	assert.Equal(t, "BE0999", saved[0]["tax_id"])

	resp, _ = e.post(t, "/suppliers/SUP-001/fields/name/edit", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.post(t, "/suppliers/SUP-001/fields/missing/edit", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestField_Suggest(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.get(t, "/suppliers/SUP-001")

	resp, body := e.get(t, "/suppliers/SUP-001/fields/supplier_group/suggest?q=raw")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []optionView
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	assert.Equal(t, []optionView{{Value: "Raw Material", Label: "Raw Material"}}, items)

	resp, _ = e.get(t, "/suppliers/SUP-001/fields/tax_id/suggest?q=raw")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLanguageSwitch(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.get(t, "/lang/fr")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := e.get(t, "/login")
	assert.Contains(t, body, `lang="fr"`)

	resp, _ = e.get(t, "/lang/xx")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	resp, _ := e.post(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 0, e.sessions.Len())
}

func readState(t *testing.T, ctx context.Context, conn *websocket.Conn, done func(liveStateMsg) bool) liveStateMsg {
	t.Helper()
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		require.NotEqual(t, msgError, msg.Type, string(msg.Data))
		if msg.Type != msgState {
			continue
		}
		var st liveStateMsg
		require.NoError(t, json.Unmarshal(msg.Data, &st))
		if done(st) {
			return st
		}
	}
}

type liveStateMsg struct {
	Loading bool   `json:"loading"`
	Page    int    `json:"page"`
	Showing string `json:"showing"`
	Rows    []struct {
		Selected bool `json:"selected"`
	} `json:"rows"`
	HTML string `json:"html"`
}

func TestLive(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, _ := url.Parse(e.srv.URL)
	header := http.Header{}
	for _, ck := range e.client.Jar.Cookies(u) {
		header.Add("Cookie", ck.Name+"="+ck.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/suppliers/list/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.CloseNow()

	send := func(typ string, data any) {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: typ, ID: typ, Data: raw}))
	}

	send(msgLoad, LoadData{PerPage: 10})
	st := readState(t, ctx, conn, func(s liveStateMsg) bool { return !s.Loading && s.Showing != "" })
	assert.Len(t, st.Rows, 10)
	assert.Equal(t, "Showing 1 to 10 of 23", st.Showing)
	assert.Contains(t, st.HTML, "SUP-001")

	send(msgPage, PageData{Page: 3})
	st = readState(t, ctx, conn, func(s liveStateMsg) bool { return !s.Loading && s.Page == 3 })
	assert.Len(t, st.Rows, 3)
	assert.Contains(t, st.HTML, "SUP-023")

	send(msgToggleRow, ToggleRowData{Index: 1})
	st = readState(t, ctx, conn, func(s liveStateMsg) bool { return len(s.Rows) == 3 && s.Rows[1].Selected })
	assert.False(t, st.Rows[0].Selected)
	assert.False(t, st.Rows[2].Selected)

	send(msgPing, nil)
	for {
		var msg ServerMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == msgPong {
			assert.Equal(t, msgPing, msg.RequestID)
			break
		}
	}
}

func TestLive_ForbiddenLogsOut(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, _ := url.Parse(e.srv.URL)
	header := http.Header{}
	for _, ck := range e.client.Jar.Cookies(u) {
		header.Add("Cookie", ck.Name+"="+ck.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/suppliers/list/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.CloseNow()

	e.erp.setForbidden(true)
	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: msgLoad, ID: "1"}))

	for {
		var msg ServerMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == msgLogout {
			break
		}
	}
	assert.Equal(t, 0, e.sessions.Len())
}
