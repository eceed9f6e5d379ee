package common

import (
	"net/http"
	"strconv"
)

// Pagination is the metadata block attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination reads ?page and ?limit. Values that are absent, malformed,
// or non-positive fall back to page 1 and the caller's default page size.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = queryInt(r, "page", 1)
	perPage = queryInt(r, "limit", defaultPerPage)
	return page, perPage
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
