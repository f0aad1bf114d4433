package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 25
	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 100
)

// PageParams holds the parsed query parameters for cursor-based list
// endpoints backed by kv.Store.List, whose cursor is an opaque string (a
// Redis SCAN cursor or an in-memory sorted-key offset) rather than a
// decodable timestamp+id pair.
type PageParams struct {
	Cursor string
	Limit  int
}

// ParsePageParams extracts cursor/limit query parameters from the request.
func ParsePageParams(r *http.Request) (PageParams, error) {
	p := PageParams{Limit: DefaultPageSize, Cursor: r.URL.Query().Get("cursor")}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		p.Limit = n
	}

	return p, nil
}

// CursorPage is the response envelope for list endpoints whose next-page
// token is an opaque cursor string rather than a decodable value.
type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// NewCursorPage wraps items with the opaque nextCursor returned by the
// backing store's List call.
func NewCursorPage[T any](items []T, nextCursor string) CursorPage[T] {
	return CursorPage[T]{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}
}
