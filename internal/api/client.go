// Package api is the HTTP client the admin console talks to its backend with.
// It injects the stored bearer token, refreshes it once on 401 through the
// HttpOnly refresh cookie, and blocks mutating verbs for operators.
package api

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/raine/landadmin/internal/credentials"
	"github.com/raine/landadmin/internal/storage"
)

const (
	// DefaultBaseURL is used when no backend origin is configured.
	DefaultBaseURL = "http://localhost:5000"

	APIPrefix   = "/api"
	LoginPath   = "/api/Login"
	RefreshPath = "/api/Login/refresh"
	UploadPath  = "/api/Upload"
)

type ClientOpts struct {
	BaseURL     string
	Credentials *credentials.Store
	Navigator   Navigator
	// HTTPClient is optional. A cookie jar is added if it has none.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client is the console's API session. Create one per process and share it;
// the pending token refresh is tracked per Client.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	creds      *credentials.Store
	nav        Navigator
	now        func() time.Time

	refreshGroup singleflight.Group
}

func NewClient(opts ClientOpts) *Client {
	c := Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		creds:   opts.Credentials,
		nav:     opts.Navigator,
		now:     opts.Now,
	}
	if c.baseURL == "" {
		log.Warn().Str("baseURL", DefaultBaseURL).Msg("api base url not configured, using default")
		c.baseURL = DefaultBaseURL
	}
	if c.creds == nil {
		c.creds = credentials.NewStore(storage.NewMemoryStore())
	}
	if c.now == nil {
		c.now = time.Now
	}

	if opts.HTTPClient != nil {
		if opts.HTTPClient.Jar == nil {
			// The refresh token only exists as a cookie.
			jar, _ := cookiejar.New(nil)
			opts.HTTPClient.Jar = jar
		}
		c.httpClient = resty.NewWithClient(opts.HTTPClient)
	} else {
		c.httpClient = resty.New()
	}
	c.httpClient.
		SetDebug(false).
		SetBaseURL(c.baseURL).
		SetLogger(restyLogger{}).
		SetHeader("Accept", "application/json, text/plain, */*")

	return &c
}

// BaseURL returns the backend origin requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns the store the client reads tokens from.
func (c *Client) Credentials() *credentials.Store {
	return c.creds
}

// restyLogger routes resty's internal messages into zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Msgf("resty: "+strings.TrimSpace(format), v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Msgf("resty: "+strings.TrimSpace(format), v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Msgf("resty: "+strings.TrimSpace(format), v...)
}
