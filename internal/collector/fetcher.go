package collector

import (
	"context"
	"time"

	"BarLedger/internal/model"
)

// Fetcher is the capability contract every market-data provider implements.
type Fetcher interface {
	Name() string
	// Priority orders providers; lower is tried first.
	Priority() int
	// Available is false when the provider lacks credentials.
	Available() bool

	// FetchDaily returns canonical bars for code within [start, end].
	FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error)
	FetchName(ctx context.Context, code string) (string, error)
	FetchList(ctx context.Context) ([]model.SecurityInfo, error)
	// FetchRealtimeQuote may return ErrUnsupported.
	FetchRealtimeQuote(ctx context.Context, code string) (*model.Quote, error)
}

// CalendarFetcher is implemented by providers that publish a trading calendar.
type CalendarFetcher interface {
	TradeStatus(ctx context.Context) (model.TradeStatus, error)
}
