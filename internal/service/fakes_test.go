package service

import (
	"context"
	"errors"
	"sync"

	"nepse_watch/internal/domain"

	"github.com/shopspring/decimal"
)

func ltp(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// memRepo is an in-memory WatchlistRepository
type memRepo struct {
	mu      sync.Mutex
	w       *domain.Watchlist
	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{w: domain.NewWatchlist()}
}

func (r *memRepo) Load(ctx context.Context) *domain.Watchlist {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := domain.NewWatchlist()
	for id := range r.w.Users {
		out.Users[id] = r.w.Goals(id)
	}
	return out
}

func (r *memRepo) Save(ctx context.Context, w *domain.Watchlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.w = w
	return nil
}

func (r *memRepo) AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return &domain.StorageError{Op: "save", Err: r.saveErr}
	}
	return r.w.SetGoal(userID, symbol, price)
}

func (r *memRepo) RemoveGoal(ctx context.Context, userID, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.DeleteGoal(userID, symbol)
}

func (r *memRepo) ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Goals(userID), nil
}

// fakeSource returns fixed quotes. When gate is set, FetchAll signals
// started and blocks until gate is closed.
type fakeSource struct {
	mu      sync.Mutex
	quotes  []domain.Quote
	err     error
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func (s *fakeSource) FetchAll(ctx context.Context) ([]domain.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.gate != nil {
		close(s.started)
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.quotes, nil
}

type sentMessage struct {
	UserID string
	Text   string
}

// fakeNotifier records deliveries and fails for users in failFor
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func (n *fakeNotifier) Send(ctx context.Context, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[userID] {
		return &domain.DeliveryError{UserID: userID, Err: errors.New("cannot send messages to this user")}
	}
	n.sent = append(n.sent, sentMessage{UserID: userID, Text: text})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}
