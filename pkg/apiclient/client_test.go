package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoserve/pkg/api"
	"github.com/marmos91/dittoserve/pkg/bufcache"
)

func TestNew(t *testing.T) {
	assert.Equal(t, "http://localhost:8081", New("http://localhost:8081/").BaseURL())
	assert.Equal(t, "http://127.0.0.1:8081", New("127.0.0.1:8081").BaseURL())
	assert.Equal(t, "https://admin.example", New("https://admin.example").BaseURL())
}

func TestDoWithSuccess(t *testing.T) {
	type Response struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Response{Message: "success"})
	}))
	defer server.Close()

	var resp Response
	require.NoError(t, New(server.URL).get("/test", &resp))
	assert.Equal(t, "success", resp.Message)
}

func TestDoWithProblem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", api.ContentTypeProblemJSON)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.Problem{Title: "Not Found", Status: 404, Detail: "cache is disabled"})
	}))
	defer server.Close()

	err := New(server.URL).get("/test", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "cache is disabled", apiErr.Detail)
	assert.Equal(t, "Not Found: cache is disabled", apiErr.Error())
}

func TestDoWithPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL).get("/test", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Internal Server Error: boom", apiErr.Error())
}

func TestDoConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(url).get("/test", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "request failed"))
}

// newAPI serves the real admin router over a small cache.
func newAPI(t *testing.T, ready <-chan struct{}, keys ...string) (*Client, *bufcache.Cache) {
	t.Helper()
	c := bufcache.New(bufcache.Config{SliceSize: 64, MaxSize: 64 * 64})
	t.Cleanup(func() { _ = c.Close() })
	for _, k := range keys {
		e := c.Reserve(k, 1)
		require.NotNil(t, e)
		e.Enable()
		e.Release()
	}

	h := api.NewRouter(api.Deps{
		Cache: c,
		Resolve: func(p string) (string, bool) {
			if !strings.HasPrefix(p, "/") {
				return "", false
			}
			return "/srv" + p, true
		},
		Ready: ready,
	})
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New(server.URL), c
}

func TestHealth(t *testing.T) {
	ready := make(chan struct{})
	client, _ := newAPI(t, ready)

	h, err := client.Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "dittoserve", h.Info.Service)
	assert.True(t, h.Info.CacheEnabled)
	assert.False(t, h.Info.ServerStarted)

	_, err = client.Ready()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "file server not listening", apiErr.Detail)

	close(ready)
	h, err = client.Ready()
	require.NoError(t, err)
	assert.True(t, h.Info.ServerStarted)
}

func TestCacheOperations(t *testing.T) {
	client, c := newAPI(t, nil, "/srv/a", "/srv/docs/b", "/srv/docs/c")

	st, err := client.CacheStats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Entries)

	res, err := client.EvictEntry("/a", false)
	require.NoError(t, err)
	assert.Equal(t, "/srv/a", res.Key)
	assert.Equal(t, 1, res.Removed)

	res, err = client.EvictEntry("/docs", true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 0, c.Stats().Entries)

	_, err = client.EvictEntry("relative", false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsBadRequest())

	e := c.Reserve("/srv/z", 1)
	require.NotNil(t, e)
	e.Release()

	n, err := client.PurgeCache()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
