package console

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matthewbaird/erpconsole/internal/auth"
	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/i18n"
	"github.com/matthewbaird/erpconsole/internal/listview"
)

// listModel is the render model of a list view, shared by the HTML page and
// the live channel.
type listModel struct {
	Slug         string       `json:"slug"`
	Title        string       `json:"title"`
	Loading      bool         `json:"loading"`
	Page         int          `json:"page"`
	Columns      []columnHead `json:"columns"`
	Rows         []listRow    `json:"rows"`
	SortOptions  []sortOption `json:"sort_options"`
	SortField    string       `json:"sort"`
	SortOrder    string       `json:"order"`
	ToggleOrder  string       `json:"toggle_order_url"`
	OrderLabel   string       `json:"order_label"`
	PerPage      int          `json:"per_page"`
	MinPerPage   int          `json:"min_per_page"`
	MaxPerPage   int          `json:"max_per_page"`
	Pager        pager        `json:"pager"`
	Showing      string       `json:"showing"`
	SelectedText string       `json:"selected_text"`
	NewURL       string       `json:"new_url"`
	LiveURL      string       `json:"live_url"`
	Error        *errorView   `json:"error,omitempty"`
}

type columnHead struct {
	Field     string `json:"field"`
	Title     string `json:"title"`
	Width     string `json:"width,omitempty"`
	Alignment string `json:"alignment,omitempty"`
	SortURL   string `json:"sort_url"`
	Sorted    bool   `json:"sorted"`
}

type listCell struct {
	Text       string `json:"text"`
	Badge      bool   `json:"badge,omitempty"`
	BadgeStyle string `json:"badge_style,omitempty"`
	Href       string `json:"href,omitempty"`
	Alignment  string `json:"alignment,omitempty"`
}

type listRow struct {
	Index    int        `json:"index"`
	Cells    []listCell `json:"cells"`
	Selected bool       `json:"selected"`
	ViewURL  string     `json:"view_url,omitempty"`
	EditURL  string     `json:"edit_url,omitempty"`
}

type sortOption struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

type pageLink struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	Current bool   `json:"current"`
}

type pager struct {
	Hidden    bool       `json:"hidden"`
	Current   int        `json:"current"`
	PrevPage  int        `json:"prev_page"`
	NextPage  int        `json:"next_page"`
	LastPage  int        `json:"last_page"`
	Pages     []pageLink `json:"pages"`
	StartDots bool       `json:"start_ellipsis"`
	EndDots   bool       `json:"end_ellipsis"`
	First     string     `json:"first,omitempty"`
	Prev      string     `json:"prev,omitempty"`
	Next      string     `json:"next,omitempty"`
	Last      string     `json:"last,omitempty"`
}

// listURL builds list links from the state of one view.
type listURL struct {
	slug  string
	state listview.State
}

func (u listURL) with(page, perPage int, sort, order string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("sort", sort)
	q.Set("order", order)
	return "/" + u.slug + "/list?" + q.Encode()
}

func (u listURL) page(n int) string {
	return u.with(n, u.state.PerPage, u.state.SortField, u.state.SortOrder)
}

func (u listURL) sort(field string) string {
	return u.with(u.state.PageNumber, u.state.PerPage, field, u.state.SortOrder)
}

func (u listURL) toggleOrder() string {
	order := listview.Descending
	if u.state.SortOrder == listview.Descending {
		order = listview.Ascending
	}
	return u.with(u.state.PageNumber, u.state.PerPage, u.state.SortField, order)
}

func buildListModel(tr *i18n.Translator, d *doctype.Descriptor, s listview.State, minPerPage int, backendURL string) listModel {
	u := listURL{slug: d.Slug, state: s}
	if minPerPage < 1 {
		minPerPage = listview.DefaultPerPage
	}
	m := listModel{
		Slug:        d.Slug,
		Title:       tr.Plural(d.I18nKey, 2),
		Loading:     s.Loading(),
		Page:        s.PageNumber,
		SortField:   s.SortField,
		SortOrder:   s.SortOrder,
		ToggleOrder: u.toggleOrder(),
		PerPage:     s.PerPage,
		MinPerPage:  minPerPage,
		MaxPerPage:  listview.MaxPerPage,
		NewURL:      newRecordURL(backendURL, d.Name),
		LiveURL:     "/" + d.Slug + "/list/ws",
	}
	if s.SortOrder == listview.Descending {
		m.OrderLabel = tr.T("words.descending")
	} else {
		m.OrderLabel = tr.T("words.ascending")
	}
	if s.Err != nil {
		ev := newErrorView(tr, s.Err)
		m.Error = &ev
	}

	for _, col := range d.List.Columns {
		title := tr.T(col.TitleKey)
		m.Columns = append(m.Columns, columnHead{
			Field:     col.FieldName,
			Title:     title,
			Width:     col.Width,
			Alignment: col.Alignment,
			SortURL:   u.sort(col.FieldName),
			Sorted:    col.FieldName == s.SortField,
		})
		m.SortOptions = append(m.SortOptions, sortOption{
			Title:  title,
			URL:    u.sort(col.FieldName),
			Active: col.FieldName == s.SortField,
		})
	}

	for i, row := range s.Rows {
		lr := listRow{Index: i, Selected: s.IsSelected(i)}
		for _, col := range d.List.Columns {
			cell := listview.RenderCell(col, row)
			lc := listCell{Text: cell.Text, Href: cell.Href, Alignment: col.Alignment}
			if cell.BadgeKey != "" {
				lc.Text = tr.T(cell.BadgeKey)
				lc.Badge = true
				lc.BadgeStyle = cell.BadgeStyle
			}
			if lr.ViewURL == "" && cell.Href != "" && d.HasForm() {
				lr.ViewURL = cell.Href
			}
			lr.Cells = append(lr.Cells, lc)
		}
		if lr.ViewURL != "" {
			lr.EditURL = lr.ViewURL + "?edit=1"
		}
		m.Rows = append(m.Rows, lr)
	}

	if s.TotalKnown {
		w := s.Window
		m.Pager = pager{
			Hidden:    w.Hidden(),
			Current:   w.CurrentPage,
			PrevPage:  w.Prev(),
			NextPage:  w.Next(),
			LastPage:  w.Last(),
			StartDots: w.ShowStartEllipsis,
			EndDots:   w.ShowEndEllipsis,
		}
		for _, n := range w.Pages {
			m.Pager.Pages = append(m.Pager.Pages, pageLink{Number: n, URL: u.page(n), Current: n == w.CurrentPage})
		}
		if !w.IsFirst() {
			m.Pager.First = u.page(1)
			m.Pager.Prev = u.page(m.Pager.PrevPage)
		}
		if !w.IsLast() {
			m.Pager.Next = u.page(m.Pager.NextPage)
			m.Pager.Last = u.page(m.Pager.LastPage)
		}
		if s.Rows != nil {
			from, to := s.Offset+1, s.Offset+len(s.Rows)
			if len(s.Rows) == 0 {
				from = 0
			}
			m.Showing = tr.T("phrases.showing_range", "from", from, "to", to, "total", s.Total)
		}
	}
	m.SelectedText = tr.Plural("phrases.rows_count_selected", len(s.Selected), "total", len(s.Rows))
	return m
}

// newRecordURL points at the ERP desk's creation form for a record type.
func newRecordURL(backendURL, doctypeName string) string {
	slug := strings.ToLower(strings.ReplaceAll(doctypeName, " ", "-"))
	return strings.TrimRight(backendURL, "/") + "/app/" + slug + "/new"
}

func (c *Console) listOptions(r *http.Request) listview.Options {
	q := r.URL.Query()
	return listview.Options{
		Page:       queryInt(r, "page", 1),
		PerPage:    queryInt(r, "per_page", listview.DefaultPerPage),
		MinPerPage: c.minPerPage,
		SortField:  q.Get("sort"),
		SortOrder:  q.Get("order"),
	}
}

func (c *Console) list(w http.ResponseWriter, r *http.Request) {
	d := descriptorFrom(r.Context())
	s := auth.FromContext(r.Context())
	tr := c.translator(r)

	// Entering the list leaves any open detail view of this record type.
	s.DropViews(d.Name + "/")

	v, err := listview.New(d, s.Backend, c.listOptions(r))
	if err != nil {
		c.renderError(w, r, backend.StatusError(http.StatusBadRequest, err.Error()))
		return
	}
	if err := v.Load(r.Context()); err != nil {
		if be := v.Err(); be != nil && backend.IsForbidden(be) {
			c.forceLogout(w, r)
			return
		}
		c.log.WarnContext(r.Context(), "list load failed", "doctype", d.Name, "err", err)
	}

	m := buildListModel(tr, d, v.Snapshot(), c.minPerPage, c.backendURL)
	status := http.StatusOK
	if m.Error != nil {
		status = errorStatus(v.Err())
	}
	c.render(w, r, status, "list", c.newPage(r, m.Title, m))
}
