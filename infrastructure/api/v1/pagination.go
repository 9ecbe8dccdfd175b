package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/helixml/marginalia/domain/repository"
	"github.com/helixml/marginalia/infrastructure/api/jsonapi"
)

// Page sizes for annotation listings. A page_size of 0 is not accepted;
// callers that want everything omit both parameters.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Pagination holds the page window parsed from a request. A zero value
// means the request asked for no pagination.
type Pagination struct {
	page     int
	pageSize int
}

// ParsePagination reads page and page_size from the query string. When
// neither is present the result is disabled and the listing is returned
// whole.
func ParsePagination(r *http.Request) Pagination {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("page_size") == "" {
		return Pagination{}
	}
	p := Pagination{page: 1, pageSize: DefaultPageSize}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n >= 1 {
		p.page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n >= 1 {
		p.pageSize = min(n, MaxPageSize)
	}
	return p
}

// Enabled reports whether the request asked for a page window.
func (p Pagination) Enabled() bool { return p.pageSize > 0 }

// Page returns the 1-indexed page number.
func (p Pagination) Page() int { return p.page }

// PageSize returns the number of items per page.
func (p Pagination) PageSize() int { return p.pageSize }

// Offset returns the number of items skipped.
func (p Pagination) Offset() int { return (p.page - 1) * p.pageSize }

// Options returns the repository options for the window.
func (p Pagination) Options() []repository.Option {
	if !p.Enabled() {
		return nil
	}
	return repository.WithPagination(p.pageSize, p.Offset())
}

func (p Pagination) totalPages(total int64) int {
	if p.pageSize <= 0 {
		return 0
	}
	return (int(total) + p.pageSize - 1) / p.pageSize
}

// Meta builds the meta object for a listing of total items.
func (p Pagination) Meta(total int64) *jsonapi.Meta {
	meta := jsonapi.Meta{"total_count": total}
	if p.Enabled() {
		meta["page"] = p.page
		meta["page_size"] = p.pageSize
		meta["total_pages"] = p.totalPages(total)
	}
	return &meta
}

// Links builds first/last/prev/next links relative to the request path.
// It returns nil when pagination is disabled.
func (p Pagination) Links(r *http.Request, total int64) *jsonapi.Links {
	if !p.Enabled() {
		return nil
	}
	pages := p.totalPages(total)
	build := func(page int) string {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(p.pageSize))
		return fmt.Sprintf("%s?%s", r.URL.EscapedPath(), q.Encode())
	}
	links := jsonapi.Links{Self: build(p.page), First: build(1)}
	if pages > 0 {
		links.Last = build(pages)
	}
	if p.page > 1 {
		links.Prev = build(p.page - 1)
	}
	if p.page < pages {
		links.Next = build(p.page + 1)
	}
	return &links
}
