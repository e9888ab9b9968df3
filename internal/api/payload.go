package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// RequestRaw is Do with non-2xx responses turned into *HTTPError. The response
// is returned alongside the error.
func (c *Client) RequestRaw(ctx context.Context, req *Request) (*resty.Response, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(res.StatusCode()) {
		return res, newHTTPError(requestMethod(req.Method), normalizePath(req.Path), res)
	}
	return res, nil
}

// Request sends req and returns the decoded-on-demand body. A 204 response
// returns nil, nil.
func (c *Client) Request(ctx context.Context, req *Request) (*Payload, error) {
	res, err := c.RequestRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	return newPayload(res), nil
}

// Payload is a successful response body.
type Payload struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func newPayload(res *resty.Response) *Payload {
	return &Payload{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}
}

// IsJSON reports whether the response declared a JSON content type.
func (p *Payload) IsJSON() bool {
	if p == nil {
		return false
	}
	return strings.Contains(strings.ToLower(p.Header.Get("Content-Type")), "json")
}

func (p *Payload) Text() string {
	if p == nil {
		return ""
	}
	return string(p.Body)
}

// Decode unmarshals the body into v. A *string receives non-JSON bodies as
// text.
func (p *Payload) Decode(v any) error {
	if p == nil || len(p.Body) == 0 {
		return nil
	}
	if s, ok := v.(*string); ok && !p.IsJSON() {
		*s = string(p.Body)
		return nil
	}
	return json.Unmarshal(p.Body, v)
}

// Value returns the parsed JSON for JSON responses and the body text
// otherwise.
func (p *Payload) Value() (any, error) {
	if p == nil {
		return nil, nil
	}
	if !p.IsJSON() {
		return string(p.Body), nil
	}
	if len(p.Body) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(p.Body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
