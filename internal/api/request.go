package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RequestOption adjusts the underlying resty request before it is sent.
type RequestOption func(r *resty.Request)

// Request describes one API call.
//
// Body may be a *FormData (sent as multipart), a string or []byte (sent as
// is), a json.RawMessage, or any other value, which is JSON encoded.
type Request struct {
	Method  string
	Path    string
	Body    any
	Header  http.Header
	Query   url.Values
	Options []RequestOption

	retried bool
}

// Do sends req with the stored access token. A 401 triggers one token
// refresh and one retry, except for the login endpoints themselves. The
// response is returned whatever its status; only transport failures and the
// operator gate produce errors.
func (c *Client) Do(ctx context.Context, req *Request) (*resty.Response, error) {
	method := requestMethod(req.Method)
	if (method == http.MethodPut || method == http.MethodDelete) && c.creds.IsOperator() {
		log.Warn().Str("method", method).Str("path", req.Path).Msg("blocked mutating request for operator")
		return nil, ErrOperatorReadOnly
	}

	path := normalizePath(req.Path)
	token := c.creds.AccessToken()

	r, err := c.newRequest(ctx, req, token)
	if err != nil {
		return nil, err
	}

	res, err := r.Execute(method, path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("method", method).Str("path", path).Int("status", res.StatusCode()).Msg("api request")

	if res.StatusCode() != http.StatusUnauthorized || req.retried || isAuthPath(path) {
		return res, nil
	}

	if _, err := c.refreshAccessToken(ctx, token); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("path", path).Msg("token refresh failed, returning original response")
		return res, nil
	}

	retry := *req
	retry.retried = true
	return c.Do(ctx, &retry)
}

func (c *Client) newRequest(ctx context.Context, req *Request, token string) (*resty.Request, error) {
	r := c.httpClient.R().SetContext(ctx)
	if token != "" {
		r.SetHeader("Authorization", "Bearer "+token)
	}
	// Caller headers go on top, so an explicit Authorization wins.
	for key, values := range req.Header {
		r.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if r.Header.Get("X-Request-Id") == "" {
		r.SetHeader("X-Request-Id", uuid.NewString())
	}

	if req.Body != nil {
		body, contentType, always, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		r.SetBody(body)
		if always || r.Header.Get("Content-Type") == "" {
			r.SetHeader("Content-Type", contentType)
		}
	}

	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	for _, opt := range req.Options {
		opt(r)
	}
	return r, nil
}

// encodeBody returns the wire body and its content type. always is set when
// the content type must replace a caller supplied one (multipart boundary).
func encodeBody(body any) (data []byte, contentType string, always bool, err error) {
	switch b := body.(type) {
	case *FormData:
		data, contentType, err = b.encode()
		return data, contentType, true, err
	case FormData:
		data, contentType, err = b.encode()
		return data, contentType, true, err
	case string:
		return []byte(b), "text/plain; charset=UTF-8", false, nil
	case []byte:
		return b, "application/octet-stream", false, nil
	case json.RawMessage:
		return b, "application/json", false, nil
	}

	data, err = json.Marshal(body)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return data, "application/json", false, nil
}

func requestMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// normalizePath returns path with exactly one leading slash.
func normalizePath(path string) string {
	return "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

// isAuthPath reports whether path is the login or refresh endpoint, which
// must never trigger a refresh themselves.
func isAuthPath(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	p := strings.ToLower(strings.TrimRight(path, "/"))
	login := strings.ToLower(LoginPath)
	return p == login || strings.HasPrefix(p, login+"/")
}

// FormData is a multipart/form-data body.
type FormData struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name, value string
}

type formFile struct {
	field, fileName string
	content         []byte
}

func NewFormData() *FormData {
	return &FormData{}
}

// Add appends a plain field. Repeated names are kept.
func (f *FormData) Add(name, value string) *FormData {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddFile appends a file part.
func (f *FormData) AddFile(field, fileName string, content []byte) *FormData {
	f.files = append(f.files, formFile{field: field, fileName: fileName, content: content})
	return f
}

// encode builds the multipart body. It runs per attempt so a retried request
// sends the full body again.
func (f FormData) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", field.name, err)
		}
	}
	for _, file := range f.files {
		part, err := writer.CreateFormFile(file.field, file.fileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
