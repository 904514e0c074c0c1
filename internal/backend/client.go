// Package backend is the client for the remote ERP API. One Client is bound
// to one console session: its cookie jar carries that user's ERP login.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	methodPath   = "/api/method/"
	resourcePath = "/api/resource/"

	// maxDescription bounds the response body kept in an Error.
	maxDescription = 512
)

// Document is one record as returned by the ERP.
type Document = map[string]any

// Filter is one `[field, operator, value]` condition.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// MarshalJSON encodes the filter in the ERP's positional form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Operator, f.Value})
}

// ListQuery is one page request against the tabular query endpoint.
type ListQuery struct {
	Doctype   string
	Fields    []string
	Filters   []Filter
	SortField string
	SortOrder string
	Offset    int
	PageSize  int
}

// ListResult is the columnar answer of FetchList: Values are row-major and
// positionally aligned to Keys.
type ListResult struct {
	Keys   []string `json:"keys"`
	Values [][]any  `json:"values"`
}

// User is the currently logged-in ERP user.
type User struct {
	ID       string
	FullName string
}

// Client talks to one ERP instance on behalf of one user.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client with its own cookie jar.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// FetchList fetches one page of rows.
func (c *Client) FetchList(ctx context.Context, q ListQuery) (ListResult, error) {
	fields, err := json.Marshal(q.Fields)
	if err != nil {
		return ListResult{}, &Error{Kind: KindRequestFailed, Err: err}
	}
	params := url.Values{
		"doctype":            {q.Doctype},
		"fields":             {string(fields)},
		"start":              {strconv.Itoa(q.Offset)},
		"page_length":        {strconv.Itoa(q.PageSize)},
		"view":               {"List"},
		"with_comment_count": {"true"},
	}
	if len(q.Filters) > 0 {
		filters, err := json.Marshal(q.Filters)
		if err != nil {
			return ListResult{}, &Error{Kind: KindRequestFailed, Err: err}
		}
		params.Set("filters", string(filters))
	}
	if q.SortField != "" {
		orderBy := q.SortField
		if q.SortOrder != "" {
			orderBy += " " + q.SortOrder
		}
		params.Set("order_by", orderBy)
	}

	var resp struct {
		Message json.RawMessage `json:"message"`
	}
	if err := c.call(ctx, http.MethodGet, methodPath+"frappe.desk.reportview.get", params, &resp); err != nil {
		return ListResult{}, err
	}

	var res ListResult
	// An empty result set comes back as an empty list instead of an object.
	if len(resp.Message) == 0 || resp.Message[0] != '{' {
		return res, nil
	}
	if err := json.Unmarshal(resp.Message, &res); err != nil {
		return ListResult{}, &Error{Kind: KindRequestFailed, Err: fmt.Errorf("decoding list: %w", err)}
	}
	return res, nil
}

// FetchCount returns the number of records matching filters.
func (c *Client) FetchCount(ctx context.Context, doctype string, filters []Filter, distinct bool) (int, error) {
	if filters == nil {
		filters = []Filter{}
	}
	fj, err := json.Marshal(filters)
	if err != nil {
		return 0, &Error{Kind: KindRequestFailed, Err: err}
	}
	params := url.Values{
		"doctype":  {doctype},
		"filters":  {string(fj)},
		"distinct": {strconv.FormatBool(distinct)},
	}
	var resp struct {
		Message int `json:"message"`
	}
	if err := c.call(ctx, http.MethodGet, methodPath+"frappe.desk.reportview.get_count", params, &resp); err != nil {
		return 0, err
	}
	return resp.Message, nil
}

// FetchDocument loads one record. The returned document carries the ERP's
// document info under the "metadata" key.
func (c *Client) FetchDocument(ctx context.Context, doctype, name string) (Document, error) {
	params := url.Values{"doctype": {doctype}, "name": {name}}
	var resp struct {
		Docs    []Document     `json:"docs"`
		DocInfo map[string]any `json:"docinfo"`
	}
	if err := c.call(ctx, http.MethodGet, methodPath+"frappe.desk.form.load.getdoc", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Docs) == 0 {
		return nil, StatusError(http.StatusNotFound, fmt.Sprintf("%s %s not found", doctype, name))
	}
	doc := resp.Docs[0]
	doc[MetadataKey] = resp.DocInfo
	return doc, nil
}

// SaveDocument persists a document. The metadata key is never sent.
func (c *Client) SaveDocument(ctx context.Context, doctype string, doc Document) error {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		if k != MetadataKey {
			out[k] = v
		}
	}
	out["doctype"] = doctype
	body, err := json.Marshal(out)
	if err != nil {
		return &Error{Kind: KindRequestFailed, Err: err}
	}
	params := url.Values{"doc": {string(body)}, "action": {"Save"}}
	return c.call(ctx, http.MethodPost, methodPath+"frappe.desk.form.save.savedocs", params, nil)
}

// GetAll returns the names of all records of a type matching filters.
func (c *Client) GetAll(ctx context.Context, doctype string, filters map[string]string) ([]string, error) {
	if filters == nil {
		filters = map[string]string{}
	}
	fj, err := json.Marshal(filters)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Err: err}
	}
	params := url.Values{
		"fields":            {`["name"]`},
		"filters":           {string(fj)},
		"limit_page_length": {"0"},
	}
	var resp struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, resourcePath+doctype, params, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		names = append(names, d.Name)
	}
	return names, nil
}

// Login authenticates against the ERP and returns the user's full name.
// The auth cookies end up in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	params := url.Values{"usr": {username}, "pwd": {password}}
	var resp struct {
		FullName string `json:"full_name"`
	}
	if err := c.call(ctx, http.MethodPost, methodPath+"login", params, &resp); err != nil {
		return "", err
	}
	return resp.FullName, nil
}

// Logout ends the ERP session.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, methodPath+"logout", nil, nil)
}

// CurrentUser checks the ERP session. The full name comes from the
// full_name cookie set at login.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodGet, methodPath+"frappe.auth.get_logged_user", nil, &resp); err != nil {
		return User{}, err
	}
	u := User{ID: resp.Message}
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == "full_name" {
			if v, err := url.QueryUnescape(ck.Value); err == nil {
				u.FullName = v
			} else {
				u.FullName = ck.Value
			}
		}
	}
	return u, nil
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path

	var body io.Reader
	if method == http.MethodGet {
		u.RawQuery = params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Kind: KindRequestFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNoResponse, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNoResponse, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError(resp.StatusCode, describe(data))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindRequestFailed, Err: fmt.Errorf("decoding %s: %w", path, err)}
	}
	return nil
}

// describe extracts a human-readable description from an error body.
func describe(body []byte) string {
	var msg struct {
		Message   string `json:"message"`
		Exception string `json:"exception"`
	}
	if json.Unmarshal(body, &msg) == nil {
		if msg.Message != "" {
			return msg.Message
		}
		if msg.Exception != "" {
			return msg.Exception
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxDescription {
		s = s[:maxDescription]
	}
	return s
}
