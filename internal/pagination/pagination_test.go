package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		size       int
		total      int
		wantPages  []int
		wantStart  bool
		wantEnd    bool
		wantPage   int
		wantTotalP int
	}{
		{"fits in window", 1, 10, 45, []int{1, 2, 3, 4, 5}, false, false, 1, 5},
		{"middle", 7, 10, 200, []int{5, 6, 7, 8, 9}, true, true, 7, 20},
		{"near start", 3, 10, 200, []int{1, 2, 3, 4, 5}, false, true, 3, 20},
		{"first page of many", 1, 10, 200, []int{1, 2, 3, 4, 5}, false, true, 1, 20},
		{"near end", 18, 10, 200, []int{16, 17, 18, 19, 20}, true, false, 18, 20},
		{"last page", 20, 10, 200, []int{16, 17, 18, 19, 20}, true, false, 20, 20},
		{"just past start boundary", 4, 10, 200, []int{2, 3, 4, 5, 6}, true, true, 4, 20},
		{"empty", 1, 10, 0, []int{}, false, false, 1, 0},
		{"single page", 1, 20, 7, []int{1}, false, false, 1, 1},
		{"partial last page", 1, 10, 23, []int{1, 2, 3}, false, false, 1, 3},
		{"six pages at start", 1, 10, 60, []int{1, 2, 3, 4, 5}, false, true, 1, 6},
		{"six pages at end", 6, 10, 60, []int{2, 3, 4, 5, 6}, true, false, 6, 6},
		{"zero page size", 1, 0, 3, []int{1, 2, 3}, false, false, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Paginate(tt.current, tt.size, tt.total)
			assert.Equal(t, tt.wantPages, w.Pages)
			assert.Equal(t, tt.wantStart, w.ShowStartEllipsis, "start ellipsis")
			assert.Equal(t, tt.wantEnd, w.ShowEndEllipsis, "end ellipsis")
			assert.Equal(t, tt.wantPage, w.CurrentPage, "current page")
			assert.Equal(t, tt.wantTotalP, w.TotalPages, "total pages")
		})
	}
}

func TestPaginate_Clamping(t *testing.T) {
	assert.Equal(t, 5, Paginate(999, 10, 45).CurrentPage)
	assert.Equal(t, 1, Paginate(0, 10, 45).CurrentPage)
	assert.Equal(t, 1, Paginate(-4, 10, 45).CurrentPage)
}

func TestPaginate_WindowLength(t *testing.T) {
	for total := 0; total <= 300; total += 7 {
		for size := 1; size <= 30; size += 5 {
			for current := -2; current <= 40; current++ {
				w := Paginate(current, size, total)
				assert.Len(t, w.Pages, min(w.TotalPages, 5))
				for i := 1; i < len(w.Pages); i++ {
					assert.Equal(t, w.Pages[i-1]+1, w.Pages[i])
				}
				if len(w.Pages) > 0 {
					assert.GreaterOrEqual(t, w.Pages[0], 1)
					assert.LessOrEqual(t, w.Pages[len(w.Pages)-1], w.TotalPages)
				}
			}
		}
	}
}

func TestWindow_Navigation(t *testing.T) {
	w := Paginate(1, 10, 45)
	assert.True(t, w.IsFirst())
	assert.False(t, w.IsLast())
	assert.Equal(t, 1, w.Prev())
	assert.Equal(t, 2, w.Next())

	w = Paginate(5, 10, 45)
	assert.True(t, w.IsLast())
	assert.Equal(t, 4, w.Prev())
	assert.Equal(t, 5, w.Next())
	assert.Equal(t, 5, w.Last())
	assert.Equal(t, 1, Paginate(1, 10, 0).Last())

	assert.True(t, Paginate(1, 20, 7).Hidden())
	assert.False(t, Paginate(1, 10, 0).Hidden())
}
