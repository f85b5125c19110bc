package service

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Page is the list envelope returned by every list endpoint.
type Page[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return skip, limit
}

func newPage[T any](items []T, total, skip, limit int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Total: total, Items: items, Skip: skip, Limit: limit}
}
