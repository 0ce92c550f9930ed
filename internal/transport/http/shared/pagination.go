package shared

import (
	"net/http"
	"strconv"

	"paycore/internal/transport/http/api"
)

// Pagination is a limit/offset window read from the query string.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset, falling back to defaultLimit and 0
// for missing or malformed values and capping limit at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	q := r.URL.Query()
	page := Pagination{Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		page.Offset = v
	}
	if maxLimit > 0 {
		page.Limit = min(page.Limit, maxLimit)
	}
	return page
}

func (p Pagination) Meta(total int) api.PageMeta {
	return api.PageMeta{Total: total, Limit: p.Limit, Offset: p.Offset}
}
