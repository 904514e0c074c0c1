package listview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
	"github.com/matthewbaird/erpconsole/internal/pagination"
)

const (
	// MaxPerPage is the largest page size a view accepts.
	MaxPerPage = 500
	// DefaultPerPage is the page size of a new view and the default minimum.
	DefaultPerPage = 20
)

// Sort orders as sent to the ERP.
const (
	Ascending  = "ASC"
	Descending = "DESC"
)

var (
	// ErrHalted is returned by every operation of a view whose query failed.
	ErrHalted = errors.New("list view halted")
	// ErrUnknownColumn is returned when sorting by a field that is not a
	// column of the record type.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnknownRow is returned when toggling a row index outside the page.
	ErrUnknownRow = errors.New("row index out of range")
)

// Fetcher runs the remote queries of a list view.
type Fetcher interface {
	FetchList(ctx context.Context, q backend.ListQuery) (backend.ListResult, error)
	FetchCount(ctx context.Context, doctype string, filters []backend.Filter, distinct bool) (int, error)
}

// Options configures a new view.
type Options struct {
	// Page is the initial page number. It is corrected once the total is
	// known.
	Page       int
	PerPage    int
	MinPerPage int
	SortField  string
	SortOrder  string
	Filters    []backend.Filter
	// OnChange is called, without the view lock, every time a fetch result
	// is applied.
	OnChange func(State)
}

// State is a snapshot of a view.
type State struct {
	Doctype    string `json:"doctype"`
	PerPage    int    `json:"per_page"`
	Offset     int    `json:"offset"`
	PageNumber int    `json:"page"`
	SortField  string `json:"sort"`
	SortOrder  string `json:"order"`
	Total      int    `json:"total"`
	TotalKnown bool   `json:"total_known"`
	// Rows is nil while the page is loading.
	Rows     []Row             `json:"rows"`
	Selected []int             `json:"selected"`
	Window   pagination.Window `json:"pagination"`
	Err      *backend.Error    `json:"-"`
}

// Loading reports whether the current page has not arrived yet.
func (s State) Loading() bool { return s.Rows == nil && s.Err == nil }

// IsSelected reports whether row i is selected.
func (s State) IsSelected(i int) bool {
	for _, j := range s.Selected {
		if j == i {
			return true
		}
	}
	return false
}

// View is one list-view instance: created when the list route is entered,
// discarded when it is left.
type View struct {
	desc    *doctype.Descriptor
	fetcher Fetcher
	fields  []string
	filters []backend.Filter
	min     int
	notify  func(State)

	mu         sync.Mutex
	perPage    int
	offset     int
	pageNumber int
	sortField  string
	sortOrder  string
	total      int
	totalKnown bool
	rows       []Row
	selected   map[int]struct{}
	err        *backend.Error
	// gen is the sequence number of the latest issued fetch.
	gen uint64
}

// New creates a view on page one. Nothing is fetched until Load.
func New(desc *doctype.Descriptor, f Fetcher, opts Options) (*View, error) {
	v := &View{
		desc:       desc,
		fetcher:    f,
		fields:     BuildFields(desc),
		filters:    opts.Filters,
		min:        opts.MinPerPage,
		notify:     opts.OnChange,
		pageNumber: 1,
		sortField:  desc.List.DefaultSort,
		sortOrder:  Ascending,
		selected:   make(map[int]struct{}),
	}
	if v.min < 1 {
		v.min = DefaultPerPage
	}
	v.perPage = clampPerPage(opts.PerPage, v.min)
	if opts.PerPage == 0 {
		v.perPage = clampPerPage(DefaultPerPage, v.min)
	}
	if opts.Page > 1 {
		v.setPage(opts.Page)
	}
	if opts.SortField != "" {
		if _, ok := desc.Column(opts.SortField); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, opts.SortField)
		}
		v.sortField = opts.SortField
	}
	if opts.SortOrder != "" {
		order, err := parseOrder(opts.SortOrder)
		if err != nil {
			return nil, err
		}
		v.sortOrder = order
	}
	return v, nil
}

func parseOrder(s string) (string, error) {
	switch s {
	case Ascending, "asc":
		return Ascending, nil
	case Descending, "desc":
		return Descending, nil
	}
	return "", fmt.Errorf("invalid sort order %q", s)
}

func clampPerPage(n, lo int) int {
	switch {
	case n < lo:
		return lo
	case n > MaxPerPage:
		return MaxPerPage
	}
	return n
}

// Descriptor returns the record type the view lists.
func (v *View) Descriptor() *doctype.Descriptor { return v.desc }

// Load fetches the current page and the total count.
func (v *View) Load(ctx context.Context) error {
	gen, err := v.change(func() error { return nil })
	if err != nil {
		return err
	}
	return v.fetch(ctx, gen, true)
}

// GoToPage moves to page n. Once the total is known, n is clamped to the
// existing pages.
func (v *View) GoToPage(ctx context.Context, n int) error {
	gen, err := v.change(func() error {
		if v.totalKnown {
			n = pagination.Paginate(n, v.perPage, v.total).CurrentPage
		} else if n < 1 {
			n = 1
		}
		v.setPage(n)
		return nil
	})
	if err != nil {
		return err
	}
	return v.fetch(ctx, gen, false)
}

// SetSortField sorts by another column. The offset and the sort order are
// kept.
func (v *View) SetSortField(ctx context.Context, field string) error {
	if _, ok := v.desc.Column(field); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, field)
	}
	gen, err := v.change(func() error {
		v.sortField = field
		return nil
	})
	if err != nil {
		return err
	}
	return v.fetch(ctx, gen, false)
}

// ToggleSortOrder flips between ascending and descending.
func (v *View) ToggleSortOrder(ctx context.Context) error {
	gen, err := v.change(func() error {
		if v.sortOrder == Ascending {
			v.sortOrder = Descending
		} else {
			v.sortOrder = Ascending
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.fetch(ctx, gen, false)
}

// SetPerPage changes the page size, clamped to [min, MaxPerPage]. The page
// number is kept and the offset recomputed; a page beyond the last one moves
// to the last page.
func (v *View) SetPerPage(ctx context.Context, n int) error {
	gen, err := v.change(func() error {
		v.perPage = clampPerPage(n, v.min)
		page := v.pageNumber
		if v.totalKnown {
			page = pagination.Paginate(page, v.perPage, v.total).CurrentPage
		}
		v.setPage(page)
		return nil
	})
	if err != nil {
		return err
	}
	return v.fetch(ctx, gen, false)
}

// ToggleRow adds or removes row i from the selection.
func (v *View) ToggleRow(i int) error {
	v.mu.Lock()
	if i < 0 || i >= len(v.rows) {
		v.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownRow, i)
	}
	if _, ok := v.selected[i]; ok {
		delete(v.selected, i)
	} else {
		v.selected[i] = struct{}{}
	}
	v.mu.Unlock()
	return nil
}

// ToggleAll clears the selection when any row is selected, otherwise it
// selects every row of the current page.
func (v *View) ToggleAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.selected) > 0 {
		clear(v.selected)
		return
	}
	for i := range v.rows {
		v.selected[i] = struct{}{}
	}
}

// Selected returns the selected row indices in ascending order.
func (v *View) Selected() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectedLocked()
}

// IsSelected reports whether row i is selected.
func (v *View) IsSelected(i int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.selected[i]
	return ok
}

// Err returns the terminal error of the view, if any.
func (v *View) Err() *backend.Error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Snapshot returns the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() State {
	s := State{
		Doctype:    v.desc.Name,
		PerPage:    v.perPage,
		Offset:     v.offset,
		PageNumber: v.pageNumber,
		SortField:  v.sortField,
		SortOrder:  v.sortOrder,
		Total:      v.total,
		TotalKnown: v.totalKnown,
		Selected:   v.selectedLocked(),
		Err:        v.err,
	}
	if v.rows != nil {
		s.Rows = append([]Row{}, v.rows...)
	}
	if v.totalKnown {
		s.Window = pagination.Paginate(v.pageNumber, v.perPage, v.total)
	}
	return s
}

func (v *View) selectedLocked() []int {
	out := make([]int, 0, len(v.selected))
	for i := range v.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (v *View) setPage(n int) {
	v.pageNumber = n
	v.offset = (n - 1) * v.perPage
}

// change applies mutate to a live view, resets the rows and the selection,
// and issues a new fetch generation.
func (v *View) change(mutate func() error) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHalted, v.err)
	}
	if err := mutate(); err != nil {
		return 0, err
	}
	v.rows = nil
	clear(v.selected)
	v.gen++
	return v.gen, nil
}

func (v *View) query() backend.ListQuery {
	return backend.ListQuery{
		Doctype:   v.desc.Name,
		Fields:    v.fields,
		Filters:   v.filters,
		SortField: v.sortField,
		SortOrder: v.sortOrder,
		Offset:    v.offset,
		PageSize:  v.perPage,
	}
}

// fetch runs the rows query, and the count query when withCount is set,
// concurrently. Each result is applied as soon as it arrives unless a newer
// generation was issued in the meantime.
func (v *View) fetch(ctx context.Context, gen uint64, withCount bool) error {
	v.mu.Lock()
	q := v.query()
	v.mu.Unlock()

	var g errgroup.Group
	if withCount {
		g.Go(func() error {
			total, err := v.fetcher.FetchCount(ctx, q.Doctype, q.Filters, false)
			return v.applyCount(ctx, gen, total, err)
		})
	}
	g.Go(func() error {
		res, err := v.fetcher.FetchList(ctx, q)
		return v.applyRows(gen, res, err)
	})
	return g.Wait()
}

func (v *View) applyRows(gen uint64, res backend.ListResult, err error) error {
	v.mu.Lock()
	if gen != v.gen || v.err != nil {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		return v.failLocked(err)
	}
	v.rows = Rows(res)
	clear(v.selected)
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.changed(s)
	return nil
}

func (v *View) applyCount(ctx context.Context, gen uint64, total int, err error) error {
	v.mu.Lock()
	if gen != v.gen || v.err != nil {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		return v.failLocked(err)
	}
	v.total = total
	v.totalKnown = true

	// The count moved the last page below the current one.
	refetch := false
	if page := pagination.Paginate(v.pageNumber, v.perPage, total).CurrentPage; page != v.pageNumber {
		v.setPage(page)
		v.rows = nil
		clear(v.selected)
		v.gen++
		refetch = true
	}
	s := v.snapshotLocked()
	next := v.gen
	v.mu.Unlock()
	v.changed(s)

	if refetch {
		return v.fetch(ctx, next, false)
	}
	return nil
}

// failLocked records the first failure as the terminal error and releases
// the lock.
func (v *View) failLocked(err error) error {
	if v.err == nil {
		v.err = backend.AsError(err)
	}
	s := v.snapshotLocked()
	stored := v.err
	v.mu.Unlock()
	v.changed(s)
	return stored
}

func (v *View) changed(s State) {
	if v.notify != nil {
		v.notify(s)
	}
}
