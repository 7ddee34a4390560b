package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Watchlist maps user ID -> symbol -> goal price for every user.
// User IDs are string-encoded Discord snowflakes; symbols are upper-case.
type Watchlist struct {
	Users map[string]map[string]decimal.Decimal
}

// NewWatchlist returns an empty watchlist
func NewWatchlist() *Watchlist {
	return &Watchlist{Users: make(map[string]map[string]decimal.Decimal)}
}

// SetGoal inserts or overwrites a goal, creating the user entry if absent.
func (w *Watchlist) SetGoal(userID, symbol string, price decimal.Decimal) error {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	if w.Users == nil {
		w.Users = make(map[string]map[string]decimal.Decimal)
	}
	goals, ok := w.Users[userID]
	if !ok {
		goals = make(map[string]decimal.Decimal)
		w.Users[userID] = goals
	}
	goals[symbol] = price
	return nil
}

// DeleteGoal removes a goal. Returns ErrGoalNotFound when absent.
// A user left with no goals keeps an empty entry.
func (w *Watchlist) DeleteGoal(userID, symbol string) error {
	symbol = NormalizeSymbol(symbol)
	goals, ok := w.Users[userID]
	if !ok {
		return ErrGoalNotFound
	}
	if _, ok := goals[symbol]; !ok {
		return ErrGoalNotFound
	}
	delete(goals, symbol)
	return nil
}

// Goals returns a copy of the user's goals (empty, never nil).
func (w *Watchlist) Goals(userID string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(w.Users[userID]))
	for sym, price := range w.Users[userID] {
		out[sym] = price
	}
	return out
}

// UserIDs returns all user IDs sorted
func (w *Watchlist) UserIDs() []string {
	ids := make([]string, 0, len(w.Users))
	for id := range w.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedSymbols returns the keys of a goal map in ascending order.
func SortedSymbols(goals map[string]decimal.Decimal) []string {
	syms := make([]string, 0, len(goals))
	for sym := range goals {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}
