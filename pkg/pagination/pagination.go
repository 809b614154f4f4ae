// Package pagination provides limit/offset paging helpers shared by the
// HTTP handlers and repositories.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// DefaultLimit is applied when the client does not specify one.
	DefaultLimit = 20
	// MaxLimit caps the page size a client may request.
	MaxLimit = 100
)

// Params carries the limit/offset pair for a list query.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads "limit" and "offset" query parameters from the request,
// clamping them to sane bounds.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit, Offset: 0}

	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}

	return p
}

// Response is the JSON envelope for paginated list endpoints.
type Response struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewResponse wraps a page of items with its paging metadata. A nil items
// slice is the caller's concern; pass an empty slice for empty pages.
func NewResponse(items any, total int, p Params) Response {
	return Response{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}
