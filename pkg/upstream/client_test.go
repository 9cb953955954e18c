package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/internal/retry"
)

func TestClient_SendSetsAuthAndContentType(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	resp, err := client.Send(context.Background(), "tok123", []byte(`{"a":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestClient_SendReturnsNon2xxToCaller(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	resp, err := client.Send(context.Background(), "tok", []byte(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

// fastRetryCfg keeps retry.Do's backoff from slowing the test suite down
// while still exercising its attempt-counting and exhaustion behavior.
func fastRetryCfg(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

// hijackNTimes closes the underlying connection for the first n requests
// (a transient network failure http.Client surfaces as a RoundTrip error,
// not a status code) before falling through to a 200.
func hijackNTimes(t *testing.T, n int) (http.HandlerFunc, *int32) {
	var attempts int32
	return func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= int32(n) {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}, &attempts
}

func TestClient_SendRetriesTransientFailureThenSucceeds(t *testing.T) {
	t.Parallel()

	handler, attempts := hijackNTimes(t, 2)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, RetryCfg: fastRetryCfg(3)}, zap.NewNop())
	resp, err := client.Send(context.Background(), "tok", []byte(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(attempts))
}

func TestClient_SendReturnsErrorAfterExhaustingRetries(t *testing.T) {
	t.Parallel()

	handler, attempts := hijackNTimes(t, 100)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, RetryCfg: fastRetryCfg(2)}, zap.NewNop())
	_, err := client.Send(context.Background(), "tok", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(attempts)) // initial attempt + 2 retries
}
