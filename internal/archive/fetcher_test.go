package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherDownloadsPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "drawsync-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer upstream.Close()

	fetcher := NewFetcher(FetcherConfig{HTTPClient: NewHTTPClient(ClientConfig{}), UserAgent: "drawsync-test"})

	payload, err := fetcher.Download(context.Background(), upstream.URL+"/loto.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	client := NewHTTPClient(ClientConfig{RetryDelays: []time.Duration{time.Millisecond}})
	fetcher := NewFetcher(FetcherConfig{HTTPClient: client})

	payload, err := fetcher.Download(context.Background(), upstream.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), payload)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetcherFailsOnClientError(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	client := NewHTTPClient(ClientConfig{RetryDelays: []time.Duration{time.Millisecond, time.Millisecond}})
	fetcher := NewFetcher(FetcherConfig{HTTPClient: client})

	_, err := fetcher.Download(context.Background(), upstream.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected status error, got %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load(), "4xx responses must not be retried")
}

func TestFetcherEnforcesSizeLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 32))
	}))
	defer upstream.Close()

	fetcher := NewFetcher(FetcherConfig{HTTPClient: NewHTTPClient(ClientConfig{}), MaxArchiveBytes: 16})

	_, err := fetcher.Download(context.Background(), upstream.URL)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, DefaultHTTPTimeout, ClampTimeout(0))
	assert.Equal(t, 5*time.Second, ClampTimeout(time.Second))
	assert.Equal(t, 300*time.Second, ClampTimeout(time.Hour))
	assert.Equal(t, 45*time.Second, ClampTimeout(45*time.Second))
}
