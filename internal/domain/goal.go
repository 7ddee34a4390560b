package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// GoalEvent is one goal whose target was met by the latest traded price.
type GoalEvent struct {
	UserID          string
	Symbol          string
	GoalPrice       decimal.Decimal
	LastTradedPrice decimal.Decimal
}

// Message renders the direct message sent for this event.
func (e GoalEvent) Message() string {
	return fmt.Sprintf("📈 **%s** reached **%s** (Goal: %s)",
		e.Symbol, e.LastTradedPrice.String(), e.GoalPrice.String())
}

// GoalReached reports whether lastTraded meets or exceeds goal.
func GoalReached(goal, lastTraded decimal.Decimal) bool {
	return lastTraded.GreaterThanOrEqual(goal)
}

// Evaluate compares every goal in the watchlist against the fetched quotes and
// returns the goals that fired. Users and symbols are visited in sorted order.
// Goals with no matching quote are skipped. A matching quote without a price
// yields a MissingPriceError in the joined error while the remaining goals are
// still evaluated. Neither input is modified.
func Evaluate(w *Watchlist, quotes []Quote) ([]GoalEvent, error) {
	if w == nil {
		return nil, nil
	}

	var events []GoalEvent
	var errs []error
	for _, userID := range w.UserIDs() {
		goals := w.Users[userID]
		for _, symbol := range SortedSymbols(goals) {
			quote := FindQuote(quotes, symbol)
			if quote == nil {
				continue
			}
			if quote.LastTradedPrice == nil {
				errs = append(errs, &MissingPriceError{Symbol: NormalizeSymbol(symbol)})
				continue
			}
			goal := goals[symbol]
			if GoalReached(goal, *quote.LastTradedPrice) {
				events = append(events, GoalEvent{
					UserID:          userID,
					Symbol:          NormalizeSymbol(symbol),
					GoalPrice:       goal,
					LastTradedPrice: *quote.LastTradedPrice,
				})
			}
		}
	}
	return events, errors.Join(errs...)
}
