package query

import "github.com/artpar/ondemand/core/schema"

// Page is the response body of a list endpoint.
type Page struct {
	Items      []schema.Record `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalItems int64           `json:"total_items"`
	TotalPages int64           `json:"total_pages"`
}

// NewPage assembles a page from the rows and the total count.
func NewPage(items []schema.Record, p Params, total int64) Page {
	if items == nil {
		items = []schema.Record{}
	}

	var pages int64
	if total > 0 && p.PageSize > 0 {
		size := int64(p.PageSize)
		pages = (total + size - 1) / size
	}

	return Page{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalItems: total,
		TotalPages: pages,
	}
}
