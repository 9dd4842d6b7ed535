package transport

import (
	"apollocfg/internal/types"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetSignsRequest(t *testing.T) {
	var gotAuth, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(HeaderAuthorization)
		gotTS = r.Header.Get(HeaderTimestamp)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("app", "secret")
	resp, err := c.Get(context.Background(), srv.URL+"/configs/app/default/application", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Contains(t, gotAuth, "Apollo app:")
	assert.NotEmpty(t, gotTS)
}

func TestClientGetReturnsNon200AsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := NewClient("app", "").Get(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	err = StatusError(srv.URL, resp)
	assert.True(t, errors.Is(err, types.ErrTransport))
	assert.False(t, errors.Is(err, types.ErrAuth))

	err = StatusError(srv.URL, &types.HTTPResponse{StatusCode: http.StatusUnauthorized})
	assert.True(t, errors.Is(err, types.ErrAuth))
}

func TestClientGetTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient("app", "").Get(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, types.IsTimeout(err))
	assert.True(t, errors.Is(err, types.ErrTransport))
}

func TestClientGetConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient("app", "").Get(context.Background(), url, time.Second)
	require.Error(t, err)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.KindConnection, te.Kind)
}
