package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raine/landadmin/internal/credentials"
	"github.com/raine/landadmin/internal/storage"
)

type navigatorMock struct {
	mock.Mock
}

func (m *navigatorMock) Location() string {
	return m.Called().String(0)
}

func (m *navigatorMock) Navigate(path string) {
	m.Called(path)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *credentials.Store, *MemoryNavigator) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	creds := credentials.NewStore(storage.NewMemoryStore())
	nav := NewMemoryNavigator("/contracts")
	client := NewClient(ClientOpts{
		BaseURL:     ts.URL,
		Credentials: creds,
		Navigator:   nav,
	})
	return client, creds, nav
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestDo_InjectsBearerToken(t *testing.T) {
	var req *http.Request
	client, creds, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		writeJSON(w, http.StatusOK, `[]`)
	}))
	creds.SetAccessToken("abc")

	res, err := client.Do(context.Background(), &Request{Path: "api/Base"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/Base", req.URL.Path)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.NotEmpty(t, req.Header.Get("X-Request-Id"))
}

func TestDo_NoTokenNoAuthorization(t *testing.T) {
	var req *http.Request
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		writeJSON(w, http.StatusOK, `[]`)
	}))

	_, err := client.Do(context.Background(), &Request{Path: "//api/Base"})
	require.NoError(t, err)
	assert.Equal(t, "/api/Base", req.URL.Path)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestDo_LegacyTokenKey(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, `{}`)
	}))
	defer ts.Close()

	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Set("authToken", "legacy"))
	client := NewClient(ClientOpts{BaseURL: ts.URL, Credentials: credentials.NewStore(mem)})

	_, err := client.Do(context.Background(), &Request{Path: "/api/Base"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer legacy", auth)
}

func TestDo_CallerHeadersWin(t *testing.T) {
	var req *http.Request
	client, creds, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		writeJSON(w, http.StatusOK, `{}`)
	}))
	creds.SetAccessToken("stored")

	header := http.Header{}
	header.Set("Authorization", "Bearer explicit")
	header.Set("X-Request-Id", "req-1")
	_, err := client.Do(context.Background(), &Request{Path: "/api/Base", Header: header})
	require.NoError(t, err)
	assert.Equal(t, "Bearer explicit", req.Header.Get("Authorization"))
	assert.Equal(t, "req-1", req.Header.Get("X-Request-Id"))
}

func TestDo_BodyEncoding(t *testing.T) {
	type seen struct {
		contentType string
		body        string
	}
	var got seen
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{contentType: r.Header.Get("Content-Type"), body: string(body)}
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx := context.Background()

	_, err := client.Do(ctx, &Request{Method: "post", Path: "/api/Base", Body: map[string]any{"Name": "a"}})
	require.NoError(t, err)
	assert.Equal(t, "application/json", got.contentType)
	assert.JSONEq(t, `{"Name":"a"}`, got.body)

	_, err = client.Do(ctx, &Request{Method: http.MethodPost, Path: "/api/Base", Body: "raw text"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=UTF-8", got.contentType)
	assert.Equal(t, "raw text", got.body)

	header := http.Header{}
	header.Set("Content-Type", "application/xml")
	_, err = client.Do(ctx, &Request{Method: http.MethodPost, Path: "/api/Base", Body: "<a/>", Header: header})
	require.NoError(t, err)
	assert.Equal(t, "application/xml", got.contentType)

	_, err = client.Do(ctx, &Request{Method: http.MethodPost, Path: "/api/Base", Body: make(chan int)})
	assert.ErrorContains(t, err, "failed to marshal request body")
}

func TestDo_OperatorCannotPutOrDelete(t *testing.T) {
	var calls atomic.Int32
	client, creds, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	creds.SetAccessToken("abc")
	creds.SetAuthRecord([]byte(`{"roleName":"OPERATOR"}`))
	ctx := context.Background()

	for _, method := range []string{http.MethodPut, "delete"} {
		_, err := client.Do(ctx, &Request{Method: method, Path: "/api/Unit/1"})
		assert.ErrorIs(t, err, ErrOperatorReadOnly, method)
	}
	_, err := client.Update(ctx, "Unit", "1", map[string]any{"Name": "x"})
	assert.ErrorIs(t, err, ErrOperatorReadOnly)
	_, err = client.DeleteUpload(ctx, "f1")
	assert.ErrorIs(t, err, ErrOperatorReadOnly)
	assert.Equal(t, int32(0), calls.Load())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		_, err := client.Do(ctx, &Request{Method: method, Path: "/api/Unit"})
		assert.NoError(t, err, method)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_AdminCanDelete(t *testing.T) {
	client, creds, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	creds.SetAuthRecord([]byte(`{"role":"Admin"}`))

	res, err := client.Do(context.Background(), &Request{Method: http.MethodDelete, Path: "/api/Unit/1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode())
}

func TestDo_RefreshesAndRetriesOnce(t *testing.T) {
	var refreshes, requests atomic.Int32
	var refreshReq *http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		refreshReq = r
		writeJSON(w, http.StatusOK, `{"jwt":"new"}`)
	})
	mux.HandleFunc("/api/Base", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `[{"id":1}]`)
	})
	client, creds, nav := newTestClient(t, mux)
	creds.SetAccessToken("old")

	res, err := client.Do(context.Background(), &Request{Path: "/api/Base"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, "new", creds.AccessToken())
	assert.Equal(t, http.MethodPost, refreshReq.Method)
	assert.Empty(t, refreshReq.Header.Get("Authorization"))
	assert.Equal(t, "/contracts", nav.Location())
}

func TestDo_RetriesAtMostOnce(t *testing.T) {
	var refreshes, requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, `{"accessToken":"new"}`)
	})
	mux.HandleFunc("/api/Base", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, creds, _ := newTestClient(t, mux)
	creds.SetAccessToken("old")

	res, err := client.Do(context.Background(), &Request{Path: "/api/Base"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode())
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), requests.Load())
}

func TestDo_LoginPathNeverRefreshes(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/Login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _, _ := newTestClient(t, mux)

	for _, path := range []string{"/api/Login", "api/Login", "/api/Login/refresh"} {
		res, err := client.Do(context.Background(), &Request{Method: http.MethodPost, Path: path})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode(), path)
	}
	// Only the direct call to the refresh endpoint reached it.
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestDo_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 12
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, http.StatusOK, `{"accessToken":"fresh"}`)
	})
	mux.HandleFunc("/api/Contract", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `[]`)
	})
	client, creds, _ := newTestClient(t, mux)
	creds.SetAccessToken("expired")

	start := make(chan struct{})
	statuses := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := client.Do(context.Background(), &Request{Path: "/api/Contract"})
			errs[i] = err
			if res != nil {
				statuses[i] = res.StatusCode()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}

	// The slot is released once the refresh settles.
	creds.SetAccessToken("expired-again")
	res, err := client.Do(context.Background(), &Request{Path: "/api/Contract"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, int32(2), refreshes.Load())
}

func TestDo_RefreshRejectedEndsSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		mux.HandleFunc("/api/Tenant", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		client, creds, nav := newTestClient(t, mux)
		creds.SetAccessToken("old")
		creds.SetAuthRecord([]byte(`{"role":"Admin"}`))

		res, err := client.Do(context.Background(), &Request{Path: "/api/Tenant"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode())
		assert.Empty(t, creds.AccessToken())
		assert.Empty(t, creds.Role())
		assert.Equal(t, "/", nav.Location())
		assert.Equal(t, []string{"/"}, nav.History())

		_, err = client.RequestRaw(context.Background(), &Request{Path: "/api/Tenant"})
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	}
}

func TestRefresh_RejectedReturnsSessionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	client, _, _ := newTestClient(t, mux)

	_, err := client.refreshAccessToken(context.Background(), "")
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, http.StatusForbidden, sessionErr.StatusCode)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestRefresh_NoTokenInResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"accessToken":""}`)
	})
	client, creds, nav := newTestClient(t, mux)
	creds.SetAccessToken("old")

	_, err := client.refreshAccessToken(context.Background(), "old")
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Empty(t, creds.AccessToken())
	assert.Equal(t, "/", nav.Location())
}

func TestRefresh_ServerErrorKeepsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client, creds, nav := newTestClient(t, mux)
	creds.SetAccessToken("old")

	_, err := client.refreshAccessToken(context.Background(), "old")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "Bad Gateway", httpErr.Body)
	assert.Equal(t, "old", creds.AccessToken())
	assert.Equal(t, "/contracts", nav.Location())
}

func TestRefresh_SendsRefreshCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, `{"accessToken":"first","role":"Admin"}`)
	})
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("refreshToken")
		if err != nil || cookie.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `{"accessToken":"second"}`)
	})
	client, creds, _ := newTestClient(t, mux)

	_, err := client.SignIn(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "first", creds.AccessToken())

	token, err := client.refreshAccessToken(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "second", token)
	assert.Equal(t, "second", creds.AccessToken())
}

func TestRefresh_SkipsWhenTokenAlreadyReplaced(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, `{"accessToken":"x"}`)
	})
	client, creds, _ := newTestClient(t, mux)
	creds.SetAccessToken("current")

	token, err := client.refreshAccessToken(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, "current", token)
	assert.Equal(t, int32(0), refreshes.Load())
}

func TestRefresh_WaiterCancellation(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Login/refresh", func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, `{"accessToken":"late"}`)
	})
	mux.HandleFunc("/api/Base", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, creds, _ := newTestClient(t, mux)
	creds.SetAccessToken("old")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Do(ctx, &Request{Path: "/api/Base"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	assert.Eventually(t, func() bool {
		return creds.AccessToken() == "late"
	}, time.Second, 10*time.Millisecond)
}

func TestRedirectToLogin_AlreadyAtRoot(t *testing.T) {
	nav := new(navigatorMock)
	nav.On("Location").Return("/")
	creds := credentials.NewStore(storage.NewMemoryStore())
	creds.SetAccessToken("abc")

	client := NewClient(ClientOpts{BaseURL: "http://example.invalid", Credentials: creds, Navigator: nav})
	client.redirectToLogin("test")

	assert.Empty(t, creds.AccessToken())
	nav.AssertNotCalled(t, "Navigate", mock.Anything)
}

func TestRedirectToLogin_NavigatesHome(t *testing.T) {
	nav := new(navigatorMock)
	nav.On("Location").Return("/units")
	nav.On("Navigate", "/").Return()

	client := NewClient(ClientOpts{BaseURL: "http://example.invalid", Navigator: nav})
	client.redirectToLogin("test")

	nav.AssertExpectations(t)
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	client := NewClient(ClientOpts{})
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
	assert.NotNil(t, client.Credentials())

	client = NewClient(ClientOpts{BaseURL: "https://admin.example.com/"})
	assert.Equal(t, "https://admin.example.com", client.BaseURL())
}

func TestNewClient_AddsCookieJar(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	NewClient(ClientOpts{BaseURL: "http://example.invalid", HTTPClient: hc})
	assert.NotNil(t, hc.Jar)
}

func TestRequestOptions(t *testing.T) {
	var got string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("extra")
		w.WriteHeader(http.StatusNoContent)
	}))

	_, err := client.Do(context.Background(), &Request{
		Path: "/api/Base",
		Options: []RequestOption{
			func(r *resty.Request) { r.SetQueryParam("extra", "1") },
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestIsAuthPath(t *testing.T) {
	tests := map[string]bool{
		"/api/Login":              true,
		"/api/login/":             true,
		"/api/Login/refresh":      true,
		"/api/Login?x=1":          true,
		"/api/LoginHistory":       false,
		"/api/Base":               false,
		"/api/Upload/api/Login":   false,
		"/api/Login/refresh/more": true,
	}
	for path, want := range tests {
		assert.Equal(t, want, isAuthPath(path), path)
	}
}

func TestHTTPError(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"Name is required"}`)
	}))

	res, err := client.RequestRaw(context.Background(), &Request{Method: http.MethodPost, Path: "api/Unit", Body: map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode())

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.MethodPost, httpErr.Method)
	assert.Equal(t, "/api/Unit", httpErr.Path)
	assert.Equal(t, "Bad Request", httpErr.Status)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(httpErr.Body), &body))
	assert.Equal(t, "Name is required", body["message"])
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("other")))
}
