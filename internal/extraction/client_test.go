package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"arrears-recon/internal/domain"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) (*GeminiClient, *[]time.Duration) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := NewGeminiClient(ClientConfig{
		BaseURL:     url,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxRetries:  retries,
		BaseBackoff: 5 * time.Second,
	}, logger)

	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func okBody(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) ||
			!assert.Len(t, req.Contents, 1) ||
			!assert.Len(t, req.Contents[0].Parts, 2) {
			http.Error(w, "bad request shape", http.StatusBadRequest)
			return
		}
		assert.Contains(t, req.Contents[0].Parts[0].Text, "2020 - 2023")
		assert.Equal(t, "application/pdf", req.Contents[0].Parts[1].InlineData.MimeType)
		assert.Equal(t, "aGVsbG8=", req.Contents[0].Parts[1].InlineData.Data)

		_, _ = io.WriteString(w, okBody(`[{"nama":"A","nop":"1","arrears":[{"year":2021,"kurangBayar":7}]}]`))
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 5)
	items, err := c.Extract(context.Background(),
		Document{Name: "a.pdf", MediaType: "application/pdf", Data: []byte("hello")},
		domain.YearConfig{Start: 2020, End: 2023})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", *items[0].Name)
	assert.Empty(t, *waits)
}

func TestExtractRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			http.Error(w, "quota", http.StatusTooManyRequests)
		case 2:
			http.Error(w, "busy", http.StatusServiceUnavailable)
		default:
			_, _ = io.WriteString(w, okBody(`[]`))
		}
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 5)
	items, err := c.Extract(context.Background(), Document{Name: "b.pdf"}, domain.DefaultYearConfig())

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *waits)
}

func TestExtractGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 5)
	_, err := c.Extract(context.Background(), Document{Name: "c.pdf"}, domain.DefaultYearConfig())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
	assert.Len(t, *waits, 5)
	assert.Equal(t, 25*time.Second, (*waits)[4])
}

func TestExtractGivesUpWhenUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 2)
	_, err := c.Extract(context.Background(), Document{Name: "f.pdf"}, domain.DefaultYearConfig())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, *waits, 2)
}

func TestIsRateLimitedMatchesMessage(t *testing.T) {
	assert.True(t, IsRateLimited(fmt.Errorf("post: %w", errors.New("upstream replied 429"))))
	assert.True(t, IsRateLimited(ErrRateLimited))
	assert.False(t, IsRateLimited(errors.New("connection reset")))
	assert.False(t, IsRateLimited(nil))
}

func TestExtractDoesNotRetryOtherFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 5)
	_, err := c.Extract(context.Background(), Document{Name: "d.pdf"}, domain.DefaultYearConfig())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtractMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, okBody(`definitely not json`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 5)
	_, err := c.Extract(context.Background(), Document{Name: "e.pdf"}, domain.DefaultYearConfig())
	assert.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestBackoffIsLinearInRetries(t *testing.T) {
	c, _ := newTestClient("http://unused", 5)
	assert.Equal(t, 5*time.Second, c.Backoff(1))
	assert.Equal(t, 15*time.Second, c.Backoff(3))
}
