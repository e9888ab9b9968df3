package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	HeaderTotalCount = "X-Total-Count"
	HeaderPageNumber = "X-Page-Number"
	HeaderPageSize   = "X-Page-Size"
)

type Pagination struct {
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

// Page is a list response. Pagination is nil when the backend sent no paging
// headers.
type Page struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// ListPage lists entity and reshapes the paging headers into the result.
func (c *Client) ListPage(ctx context.Context, entity string, params map[string]string) (*Page, error) {
	res, err := c.RequestRaw(ctx, &Request{
		Method: http.MethodGet,
		Path:   entityPath(entity),
		Query:  queryValues(params),
	})
	if err != nil {
		return nil, err
	}
	return NewPage(res.Header(), res.Body()), nil
}

// NewPage builds a Page from a response. The paging headers are used when
// X-Total-Count is present; missing or malformed numbers read as 0.
func NewPage(header http.Header, body []byte) *Page {
	page := &Page{Data: json.RawMessage(body)}
	if len(body) == 0 {
		page.Data = json.RawMessage("null")
	}
	if header.Get(HeaderTotalCount) == "" {
		return page
	}
	page.Pagination = &Pagination{
		TotalCount: headerInt(header, HeaderTotalCount),
		PageNumber: headerInt(header, HeaderPageNumber),
		PageSize:   headerInt(header, HeaderPageSize),
	}
	return page
}

func headerInt(header http.Header, key string) int {
	n, err := strconv.Atoi(header.Get(key))
	if err != nil {
		return 0
	}
	return n
}
