package domain

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is one slice of a filtered, ordered result set.
type Page[T any] struct {
	TotalItems  int
	TotalPages  int
	CurrentPage int
	Data        []T
}

// NormalizePaging applies the defaults for missing or out-of-range values.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Offset is (page-1)*limit for normalized paging, saturating at math.MaxInt
// instead of wrapping for very large pages.
func Offset(page, limit int) int {
	page, limit = NormalizePaging(page, limit)
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// Paginate slices items to [(page-1)*limit, page*limit).
func Paginate[T any](items []T, page, limit int) Page[T] {
	page, limit = NormalizePaging(page, limit)
	total := len(items)
	start := Offset(page, limit)
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	data := make([]T, end-start)
	copy(data, items[start:end])
	return Page[T]{
		TotalItems:  total,
		TotalPages:  TotalPages(total, limit),
		CurrentPage: page,
		Data:        data,
	}
}
