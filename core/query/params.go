// Package query turns list request parameters into paginated, filtered,
// searched and sorted SQL for a registered model.
package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Defaults and bounds for pagination.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Errors returned while parsing or building a list query.
var (
	ErrInvalidFilterFormat = errors.New("invalid filter format")
	ErrInvalidFilterField  = errors.New("invalid filter field")
	ErrInvalidPagination   = errors.New("invalid pagination")
	ErrInvalidSortOrder    = errors.New("invalid sort order")
)

// Params are the list parameters of a generated list endpoint.
type Params struct {
	Page      int
	PageSize  int
	Search    string
	Filter    map[string]string
	SortBy    string
	SortOrder string
}

// Offset returns the number of rows skipped before the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// checkBounds rejects pages whose offset does not fit in an int.
func (p Params) checkBounds() error {
	if p.Page < 1 || p.PageSize < 1 || p.PageSize > MaxPageSize || p.Page-1 > math.MaxInt/p.PageSize {
		return fmt.Errorf("%w: page %d with page_size %d is out of range",
			ErrInvalidPagination, p.Page, p.PageSize)
	}
	return nil
}

// DefaultParams returns parameters for the first page with no predicates.
func DefaultParams() Params {
	return Params{Page: DefaultPage, PageSize: DefaultPageSize, SortOrder: SortAsc}
}

// Parse reads list parameters from a query string.
// Field names are checked later by Build, which knows the model.
func Parse(values url.Values) (Params, error) {
	p := DefaultParams()

	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("%w: page must be an integer >= 1, got %q", ErrInvalidPagination, raw)
		}
		p.Page = n
	}

	if raw := values.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPageSize {
			return Params{}, fmt.Errorf("%w: page_size must be an integer between 1 and %d, got %q",
				ErrInvalidPagination, MaxPageSize, raw)
		}
		p.PageSize = n
	}

	if err := p.checkBounds(); err != nil {
		return Params{}, err
	}

	if raw := values.Get("sort_order"); raw != "" {
		switch strings.ToLower(raw) {
		case SortAsc:
			p.SortOrder = SortAsc
		case SortDesc:
			p.SortOrder = SortDesc
		default:
			return Params{}, fmt.Errorf("%w: sort_order must be asc or desc, got %q", ErrInvalidSortOrder, raw)
		}
	}

	p.SortBy = values.Get("sort_by")
	p.Search = values.Get("search")

	if raw := values.Get("filter"); raw != "" {
		filter, err := parseFilter(raw)
		if err != nil {
			return Params{}, err
		}
		p.Filter = filter
	}

	return p, nil
}

// parseFilter decodes a JSON object whose values are all strings.
func parseFilter(raw string) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: filter must be a JSON object", ErrInvalidFilterFormat)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after filter object", ErrInvalidFilterFormat)
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q must be a string", ErrInvalidFilterFormat, k)
		}
		out[k] = s
	}
	return out, nil
}
