package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrimaryForTest(baseURL string) *PrimaryClient {
	return NewPrimaryClient(PrimaryOptions{
		BaseURL:         baseURL,
		Timeout:         2 * time.Second,
		RequestsPerSec:  100,
		MaxRetryTimeout: 200 * time.Millisecond,
	})
}

func TestPrimaryClientFetch(t *testing.T) {
	t.Run("well-formed payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/v8/finance/chart/B3SA3.SA")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"chart": {
					"result": [{
						"timestamp": [1755907200, 1755993600, 1756080000],
						"indicators": {
							"quote": [{
								"close": [13.05, null, 13.20],
								"volume": [1000, null, 1200]
							}]
						}
					}],
					"error": null
				}
			}`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		series, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.NoError(t, err)

		// The null close row is dropped
		require.Len(t, series.Observations, 2)
		assert.True(t, series.Observations[0].Close.Equal(decimal.NewFromFloat(13.05)))
		assert.Equal(t, int64(1200), series.Observations[1].Volume)
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart": {"result": [`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed chart payload")
	})

	t.Run("API-level error is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart": {"result": [], "error": {"code": "Not Found", "description": "No data found"}}}`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No data found")
	})

	t.Run("empty result is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chart": {"result": [], "error": null}}`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		assert.Error(t, err)
	})

	t.Run("all-null closes are rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"chart": {
					"result": [{
						"timestamp": [1755907200],
						"indicators": {"quote": [{"close": [null], "volume": [null]}]}
					}],
					"error": null
				}
			}`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		assert.Error(t, err)
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{
				"chart": {
					"result": [{
						"timestamp": [1755907200],
						"indicators": {"quote": [{"close": [13.05], "volume": [1000]}]}
					}],
					"error": null
				}
			}`))
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		series, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, attempts, 2)
		assert.Len(t, series.Observations, 1)
	})

	t.Run("persistent failure surfaces after retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newPrimaryForTest(server.URL)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary API request failed")
	})
}

func TestFallbackClientFetch(t *testing.T) {
	t.Run("parses CSV history", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/v7/finance/download/B3SA3.SA")
			w.Write([]byte("Date,Open,High,Low,Close,Adj Close,Volume\n" +
				"2026-08-20,13.00,13.20,12.90,13.05,13.05,1000\n" +
				"2026-08-21,13.05,13.30,13.00,null,null,1100\n" +
				"2026-08-22,13.10,13.40,13.05,13.20,13.20,1200\n"))
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, 2*time.Second)
		series, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.NoError(t, err)

		// The null close row is dropped
		require.Len(t, series.Observations, 2)
		assert.True(t, series.Observations[1].Close.Equal(decimal.NewFromFloat(13.20)))
	})

	t.Run("status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, 2*time.Second)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("header-only CSV is empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Date,Open,High,Low,Close,Adj Close,Volume\n"))
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, 2*time.Second)
		_, err := client.Fetch(context.Background(), "B3SA3.SA", 30)
		assert.Error(t, err)
	})
}
