package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// FallbackClient downloads the same logical series through the CSV export
// endpoint. Invoked only after the primary API has failed.
type FallbackClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFallbackClient creates the secondary market-data client
func NewFallbackClient(baseURL string, timeout time.Duration) *FallbackClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FallbackClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With().Str("component", "marketdata_fallback").Logger(),
	}
}

// Name identifies this provider in DriftReport attribution
func (c *FallbackClient) Name() models.DataSource {
	return models.SourceFallbackLibrary
}

// Fetch downloads and parses the CSV history for the last windowDays days
func (c *FallbackClient) Fetch(ctx context.Context, symbol string, windowDays int) (*models.Series, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -windowDays*2)

	url := fmt.Sprintf("%s/v7/finance/download/%s?period1=%d&period2=%d&interval=1d&events=history",
		c.baseURL, symbol, start.Unix(), end.Unix())
	c.logger.Debug().Str("url", url).Msg("Fetching fallback series")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback request: %w", err)
	}
	req.Header.Set("User-Agent", "forecast-monitor/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fallback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fallback API returned status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed fallback CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("empty series returned for %s", symbol)
	}

	series := &models.Series{
		Symbol:    symbol,
		FetchedAt: time.Now(),
		Source:    models.SourceFallbackLibrary,
	}
	// Header: Date,Open,High,Low,Close,Adj Close,Volume
	for _, row := range records[1:] {
		if len(row) < 7 || row[4] == "null" {
			continue
		}
		ts, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		closePrice, err := decimal.NewFromString(row[4])
		if err != nil {
			continue
		}
		volume, _ := strconv.ParseInt(row[6], 10, 64)
		series.Observations = append(series.Observations, models.Observation{
			Timestamp: ts.UTC(),
			Close:     closePrice,
			Volume:    volume,
		})
	}

	if len(series.Observations) == 0 {
		return nil, fmt.Errorf("no parsable rows in fallback CSV for %s", symbol)
	}

	c.logger.Debug().Int("observations", len(series.Observations)).Msg("Fallback fetch succeeded")
	return series, nil
}
