package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/raine/landadmin/internal/credentials"
)

const refreshFlightKey = "refresh"

// refreshAccessToken exchanges the refresh cookie for a new access token.
// Concurrent callers share one in-flight refresh. staleToken is the token the
// caller got a 401 with; if the store already holds a different one, another
// caller refreshed in the meantime and no new refresh is made.
//
// The refresh itself keeps running when ctx is cancelled so the other
// waiters still get its result.
func (c *Client) refreshAccessToken(ctx context.Context, staleToken string) (string, error) {
	if token, ok := c.replacedToken(staleToken); ok {
		return token, nil
	}

	ch := c.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		if token, ok := c.replacedToken(staleToken); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) replacedToken(staleToken string) (string, bool) {
	current := c.creds.AccessToken()
	if current != "" && current != staleToken {
		return current, true
	}
	return "", false
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	log.Info().Msg("refreshing access token")

	// No Authorization header: the refresh cookie is the only credential.
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString()).
		Post(RefreshPath)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}

	code := res.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.redirectToLogin(fmt.Sprintf("refresh rejected with status %d", code))
		return "", &SessionError{StatusCode: code, Err: ErrSessionExpired}
	case !isSuccess(code):
		return "", newHTTPError(http.MethodPost, RefreshPath, res)
	}

	value, err := newPayload(res).Value()
	if err != nil {
		return "", fmt.Errorf("failed to parse refresh response: %w", err)
	}
	token, ok := credentials.ExtractAccessToken(value)
	if !ok {
		c.redirectToLogin("refresh response contained no access token")
		return "", &SessionError{StatusCode: code, Err: ErrNoAccessToken}
	}

	c.creds.SetAccessToken(token)
	log.Info().Msg("access token refreshed")
	return token, nil
}
