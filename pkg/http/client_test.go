package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordingClient(slept *[]time.Duration) *Client {
	c := NewClient(WithTimeout(time.Second), WithUserAgent("fincast-test"))
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return c
}

func TestFetchJSONSendsQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1y", r.URL.Query().Get("range"))
		assert.Equal(t, "fincast-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	var out struct{ Value int }
	err := newRecordingClient(&slept).FetchJSON(context.Background(), &RequestOptions{
		URL:         srv.URL,
		QueryParams: url.Values{"range": {"1y"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestFetchJSONWithRetryBacksOffExponentially(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	err := newRecordingClient(&slept).FetchJSONWithRetry(context.Background(), &RequestOptions{URL: srv.URL}, nil,
		RetryPolicy{Attempts: 4, Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, slept)
}

func TestFetchJSONWithRetryHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	err := newRecordingClient(&slept).FetchJSONWithRetry(context.Background(), &RequestOptions{URL: srv.URL}, nil,
		RetryPolicy{Attempts: 2, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestFetchJSONWithRetryStopsOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such symbol"))
	}))
	defer srv.Close()

	var slept []time.Duration
	err := newRecordingClient(&slept).FetchJSONWithRetry(context.Background(), &RequestOptions{URL: srv.URL}, nil,
		RetryPolicy{Attempts: 5, Backoff: time.Millisecond})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "no such symbol", se.Body)
	assert.False(t, se.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, slept)
}

func TestFetchJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var slept []time.Duration
	var out map[string]interface{}
	err := newRecordingClient(&slept).FetchJSON(context.Background(), &RequestOptions{URL: srv.URL}, &out)
	assert.ErrorContains(t, err, "decode json")
}
