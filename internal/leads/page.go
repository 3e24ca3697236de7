package leads

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPerPage = 20
	maxPerPage     = 200
)

type PageParams struct {
	Page    int // 1-indexed
	PerPage int
}

func ParsePageParams(v url.Values) PageParams {
	page := atoiDef(v.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage := atoiDef(v.Get("per_page"), DefaultPerPage)
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return PageParams{Page: page, PerPage: perPage}
}

// Page is one window of a sorted, filtered list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func paginate[T any](rows []T, p PageParams) Page[T] {
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	totalPages := max((len(rows)+p.PerPage-1)/p.PerPage, 1)
	page := min(max(p.Page, 1), totalPages)

	offset := (page - 1) * p.PerPage
	end := min(offset+p.PerPage, len(rows))
	items := []T{}
	if offset < len(rows) {
		items = rows[offset:end]
	}
	return Page[T]{Items: items, Page: page, PerPage: p.PerPage, Total: len(rows), TotalPages: totalPages}
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
