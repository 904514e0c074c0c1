// Package pagination computes the page window shown by list views.
package pagination

const (
	// pagesToShow is the maximum number of page buttons in a window.
	pagesToShow = 5
	// pagesOnEitherSide is how many neighbours surround the current page.
	pagesOnEitherSide = 2
)

// Window is the result of Paginate: the page numbers to render plus the
// ellipsis markers and the corrected current page.
type Window struct {
	Pages             []int `json:"pages"`
	ShowStartEllipsis bool  `json:"show_start_ellipsis"`
	ShowEndEllipsis   bool  `json:"show_end_ellipsis"`
	CurrentPage       int   `json:"current_page"`
	TotalPages        int   `json:"total_pages"`
}

// Paginate maps (current page, page size, total items) to a bounded window
// of page numbers. It never fails: a zero total yields an empty window.
func Paginate(currentPage, pageSize, total int) Window {
	if pageSize < 1 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + pageSize - 1) / pageSize

	w := Window{TotalPages: totalPages}

	var start, end int
	switch {
	case totalPages <= pagesToShow:
		start, end = 1, totalPages
	case currentPage <= pagesToShow-pagesOnEitherSide:
		start, end = 1, pagesToShow
		w.ShowEndEllipsis = true
	case currentPage+pagesOnEitherSide >= totalPages:
		start, end = totalPages-(pagesToShow-1), totalPages
		w.ShowStartEllipsis = true
	default:
		start, end = currentPage-pagesOnEitherSide, currentPage+pagesOnEitherSide
		w.ShowStartEllipsis = true
		w.ShowEndEllipsis = true
	}

	w.Pages = make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		w.Pages = append(w.Pages, p)
	}

	w.CurrentPage = currentPage
	if currentPage > totalPages {
		w.CurrentPage = totalPages
	}
	if currentPage <= 0 || w.CurrentPage <= 0 {
		w.CurrentPage = 1
	}
	return w
}

// Hidden reports whether a pager should render nothing. A single page is a
// display no-op, not an error.
func (w Window) Hidden() bool {
	return w.TotalPages == 1
}

// IsFirst reports whether the current page is the first one.
func (w Window) IsFirst() bool { return w.CurrentPage <= 1 }

// IsLast reports whether the current page is the last one.
func (w Window) IsLast() bool { return w.CurrentPage >= w.TotalPages }

// Prev returns the previous page number, never below 1.
func (w Window) Prev() int {
	if w.CurrentPage <= 1 {
		return 1
	}
	return w.CurrentPage - 1
}

// Next returns the next page number, never beyond the last page.
func (w Window) Next() int {
	if w.CurrentPage >= w.TotalPages {
		return max(w.TotalPages, 1)
	}
	return w.CurrentPage + 1
}

// Last returns the last page number, at least 1.
func (w Window) Last() int { return max(w.TotalPages, 1) }
