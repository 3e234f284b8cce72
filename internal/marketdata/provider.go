package marketdata

import (
	"context"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Provider is one acquisition strategy in the fallback chain. Fetch returns
// an ordered (oldest first) series or an error; providers never fabricate data.
type Provider interface {
	Name() models.DataSource
	Fetch(ctx context.Context, symbol string, windowDays int) (*models.Series, error)
}
