package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raine/landadmin/internal/credentials"
)

const (
	auditActor = "admin"
	// actionDateLayout is ISO-8601 with milliseconds, always UTC.
	actionDateLayout = "2006-01-02T15:04:05.000Z"
)

// List fetches GET /api/{entity} with params as the query string.
func (c *Client) List(ctx context.Context, entity string, params map[string]string) (*Payload, error) {
	return c.Request(ctx, &Request{
		Method: http.MethodGet,
		Path:   entityPath(entity),
		Query:  queryValues(params),
	})
}

func (c *Client) Get(ctx context.Context, entity, id string) (*Payload, error) {
	return c.Request(ctx, &Request{
		Method: http.MethodGet,
		Path:   entityPath(entity, id),
	})
}

// Create posts data to /api/{entity} with the audit fields added.
func (c *Client) Create(ctx context.Context, entity string, data any) (*Payload, error) {
	body, err := c.withAudit(data, "Create", true)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, &Request{
		Method: http.MethodPost,
		Path:   entityPath(entity),
		Body:   body,
	})
}

// Update puts data to /api/{entity}/{id} with the audit fields added.
func (c *Client) Update(ctx context.Context, entity, id string, data any) (*Payload, error) {
	body, err := c.withAudit(data, "Update", true)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, &Request{
		Method: http.MethodPut,
		Path:   entityPath(entity, id),
		Body:   body,
	})
}

// Remove deletes /api/{entity}/{id}. The backend soft deletes and records the
// audit fields sent in the body.
func (c *Client) Remove(ctx context.Context, entity, id string) (*Payload, error) {
	body, err := c.withAudit(nil, "Delete", false)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, &Request{
		Method: http.MethodDelete,
		Path:   entityPath(entity, id),
		Body:   body,
	})
}

// Post sends data to an arbitrary path. header may be nil.
func (c *Client) Post(ctx context.Context, path string, data any, header http.Header) (*Payload, error) {
	return c.Request(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   data,
		Header: header,
	})
}

// Login posts credentials to the login endpoint. It does not store anything;
// see SignIn.
func (c *Client) Login(ctx context.Context, creds any) (*Payload, error) {
	return c.Post(ctx, LoginPath, creds, nil)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignIn logs in and stores the returned access token and auth record.
func (c *Client) SignIn(ctx context.Context, username, password string) (*Payload, error) {
	payload, err := c.Login(ctx, LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	value, err := payload.Value()
	if err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	token, ok := credentials.ExtractAccessToken(value)
	if !ok {
		return nil, ErrNoAccessToken
	}

	if !c.creds.SetAccessToken(token) {
		log.Warn().Msg("access token could not be persisted, session will not survive a restart")
	}
	c.creds.SetAuthRecord(payload.Body)
	log.Info().Str("username", username).Str("role", c.creds.Role()).Msg("signed in")
	return payload, nil
}

// SignOut forgets the stored session. The refresh cookie stays in the jar
// until the backend expires it.
func (c *Client) SignOut() {
	c.creds.Clear()
	log.Info().Msg("signed out")
}

func (c *Client) actionDate() string {
	return c.now().UTC().Format(actionDateLayout)
}

// withAudit returns data as a JSON object with the audit fields set. Audit
// fields replace caller supplied keys of the same name.
func (c *Client) withAudit(data any, action string, withDeleted bool) (map[string]any, error) {
	obj, err := toObject(data)
	if err != nil {
		return nil, err
	}
	obj["Action"] = action
	obj["ActionBy"] = auditActor
	obj["ActionDate"] = c.actionDate()
	if withDeleted {
		obj["IsDeleted"] = false
	}
	return obj, nil
}

func toObject(data any) (map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		obj := make(map[string]any, len(v)+4)
		for key, value := range v {
			obj[key] = value
		}
		return obj, nil
	}

	raw, ok := data.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrNotJSONObject
	}
	return obj, nil
}

func entityPath(entity string, id ...string) string {
	path := APIPrefix + "/" + strings.Trim(entity, "/")
	for _, part := range id {
		path += "/" + url.PathEscape(part)
	}
	return path
}

func queryValues(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	values := make(url.Values, len(params))
	for key, value := range params {
		values.Set(key, value)
	}
	return values
}
