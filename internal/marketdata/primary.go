package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// PrimaryClient queries the versioned chart endpoint directly. It is the
// authoritative source when it returns a well-formed, non-empty payload.
type PrimaryClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetry   time.Duration
	logger     zerolog.Logger
}

// PrimaryOptions holds options for creating a PrimaryClient
type PrimaryOptions struct {
	BaseURL         string
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetryTimeout time.Duration
}

// NewPrimaryClient creates a client for the primary market-data API
func NewPrimaryClient(opts PrimaryOptions) *PrimaryClient {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 8 * time.Second
	}

	return &PrimaryClient{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		maxRetry:   opts.MaxRetryTimeout,
		logger:     log.With().Str("component", "marketdata_primary").Logger(),
	}
}

// Name identifies this provider in DriftReport attribution
func (c *PrimaryClient) Name() models.DataSource {
	return models.SourcePrimaryAPI
}

// chartResponse mirrors the v8 chart payload
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves a daily close/volume series for the last windowDays days
func (c *PrimaryClient) Fetch(ctx context.Context, symbol string, windowDays int) (*models.Series, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%dd", c.baseURL, symbol, windowDays*2)
	c.logger.Debug().Str("url", url).Msg("Fetching primary series")

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "forecast-monitor/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("primary API returned status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.maxRetry

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, fmt.Errorf("primary API request failed: %w", err)
	}

	series, err := parseChartPayload(symbol, body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Primary payload rejected")
		return nil, err
	}

	c.logger.Debug().Int("observations", len(series.Observations)).Msg("Primary fetch succeeded")
	return series, nil
}

func parseChartPayload(symbol string, body []byte) (*models.Series, error) {
	var data chartResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("malformed chart payload: %w", err)
	}

	if data.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %s", data.Chart.Error.Description)
	}
	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", symbol)
	}

	result := data.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	if len(result.Timestamp) == 0 || len(quote.Close) != len(result.Timestamp) {
		return nil, fmt.Errorf("inconsistent chart series for %s", symbol)
	}

	series := &models.Series{
		Symbol:    symbol,
		FetchedAt: time.Now(),
		Source:    models.SourcePrimaryAPI,
	}
	for i, ts := range result.Timestamp {
		if quote.Close[i] == nil {
			continue // market holiday rows carry nulls
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		series.Observations = append(series.Observations, models.Observation{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     decimal.NewFromFloat(*quote.Close[i]),
			Volume:    volume,
		})
	}

	if len(series.Observations) == 0 {
		return nil, fmt.Errorf("empty series returned for %s", symbol)
	}
	return series, nil
}
