package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource fetches the current list of security quotes
type QuoteSource interface {
	FetchAll(ctx context.Context) ([]Quote, error)
}

// WatchlistRepository is the durable user -> symbol -> goal price mapping.
// Load never fails: missing or unreadable state is an empty watchlist.
type WatchlistRepository interface {
	Load(ctx context.Context) *Watchlist
	Save(ctx context.Context, w *Watchlist) error
	AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error
	RemoveGoal(ctx context.Context, userID, symbol string) error
	ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error)
}

// Notifier delivers a text message to a single user
type Notifier interface {
	Send(ctx context.Context, userID, text string) error
}
