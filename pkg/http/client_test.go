package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clientTestToken1 = "token-one"
	clientTestToken2 = "token-two"
)

// rotatingTokens hands out clientTestToken1 until invalidated, then clientTestToken2.
type rotatingTokens struct {
	mu          sync.Mutex
	current     string
	invalidated []string
	tokenErr    error
}

func (r *rotatingTokens) Token(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokenErr != nil {
		return "", r.tokenErr
	}
	if r.current == "" {
		r.current = clientTestToken1
	}
	return r.current, nil
}

func (r *rotatingTokens) Invalidate(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, token)
	if token == r.current {
		r.current = clientTestToken2
	}
}

func TestClient_GetDecodesJSONAndSendsBearer(t *testing.T) {
	var gotAuth, gotRequestID, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(RequestIDHeader)
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"files":["a.csv"]}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &rotatingTokens{})

	var out struct {
		Files []string `json:"files"`
	}
	require.NoError(t, c.Get(context.Background(), "/azure-blob/list-files?dataset_name=soil", &out))

	assert.Equal(t, []string{"a.csv"}, out.Files)
	assert.Equal(t, "Bearer "+clientTestToken1, gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "dataset_name=soil", gotQuery)
}

func TestClient_PostSendsJSONBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"created"}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &rotatingTokens{})
	var out map[string]any
	require.NoError(t, c.Post(context.Background(), "/dataset", map[string]any{"id": "x"}, &out))
	assert.Equal(t, "x", got["id"])
	assert.Equal(t, "created", out["id"])
}

func TestClient_RetriesOnceAfter401(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth != "Bearer "+clientTestToken2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	tokens := &rotatingTokens{}
	c := New(Config{BaseURL: srv.URL}, tokens)

	var out []any
	require.NoError(t, c.Get(context.Background(), "/dataset/user-datasets", &out))
	assert.Equal(t, []string{"Bearer " + clientTestToken1, "Bearer " + clientTestToken2}, seen)
	assert.Equal(t, []string{clientTestToken1}, tokens.invalidated)
}

func TestClient_SecondUnauthorizedIsReturned(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "bad token")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &rotatingTokens{})
	err := c.Get(context.Background(), "/dataset", nil)

	require.Error(t, err)
	assert.Equal(t, 2, calls, "exactly one retry")
	herr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
	assert.Equal(t, "bad token", herr.Body)
	assert.Equal(t, http.MethodGet, herr.Method)
}

func TestClient_NoRetryWithoutTokens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := c.GetBytes(context.Background(), "/public")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClient_TokenErrorStopsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	errNoToken := errors.New("no token")
	c := New(Config{BaseURL: srv.URL}, &rotatingTokens{tokenErr: errNoToken})
	err := c.Get(context.Background(), "/dataset", nil)
	require.ErrorIs(t, err, errNoToken)
	assert.Zero(t, calls)
}

func TestClient_ServerErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", maxErrorBody+10))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &rotatingTokens{})
	err := c.Get(context.Background(), "/dataset/search", nil)

	herr, ok := AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %v", err)
	assert.Equal(t, http.StatusInternalServerError, herr.StatusCode)
	assert.Len(t, herr.Body, maxErrorBody)
	assert.Contains(t, herr.Error(), "500 Internal Server Error")
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	var out map[string]any
	err := c.Get(context.Background(), "/dataset", &out)
	if err == nil || !strings.Contains(err.Error(), "decoding") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.blob.core.windows.net/c/b?sv=2022&sig=abc", "https://a.blob.core.windows.net/c/b"},
		{"https://bucket.s3.amazonaws.com/k?X-Amz-Signature=1", "https://bucket.s3.amazonaws.com/k"},
		{"/dataset?dataset_name=soil", "/dataset?dataset_name=soil"},
		{"/dataset", "/dataset"},
	}
	for _, tt := range tests {
		if got := redactQuery(tt.in); got != tt.want {
			t.Errorf("redactQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsStatus(t *testing.T) {
	err := &HTTPError{StatusCode: http.StatusNotFound}
	if !IsStatus(err, http.StatusBadRequest, http.StatusNotFound) {
		t.Error("IsStatus() = false, want true")
	}
	if IsStatus(errors.New("plain"), http.StatusNotFound) {
		t.Error("IsStatus() on plain error = true")
	}
}
