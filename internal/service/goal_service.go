package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nepse_watch/internal/domain"
	"nepse_watch/internal/infra"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleReport summarizes one evaluation cycle
type CycleReport struct {
	ID        uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Quotes    int
	Events    int
	Delivered int
	Failed    int
}

// GoalService owns the watchlist, the quote source and the notifier. It runs
// evaluation cycles and backs the chat commands.
type GoalService struct {
	store        domain.WatchlistRepository
	source       domain.QuoteSource
	notifier     domain.Notifier
	metrics      *infra.Metrics
	fetchTimeout time.Duration

	cycleMu sync.Mutex
	logger  *slog.Logger
}

// NewGoalService wires the service. metrics may be nil.
func NewGoalService(store domain.WatchlistRepository, source domain.QuoteSource, notifier domain.Notifier, metrics *infra.Metrics) *GoalService {
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	return &GoalService{
		store:    store,
		source:   source,
		notifier: notifier,
		metrics:  metrics,
		logger:   slog.Default().With("module", "goal_service"),
	}
}

// WithFetchTimeout bounds each quote fetch started by the service
func (s *GoalService) WithFetchTimeout(d time.Duration) *GoalService {
	s.fetchTimeout = d
	return s
}

// AddGoal upserts a goal for the user
func (s *GoalService) AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error {
	if err := s.store.AddGoal(ctx, userID, symbol, price); err != nil {
		return err
	}
	s.logger.Info("Goal added",
		slog.String("user_id", userID),
		slog.String("symbol", domain.NormalizeSymbol(symbol)),
		slog.String("price", price.String()))
	return nil
}

// RemoveGoal deletes a goal. Returns domain.ErrGoalNotFound if absent.
func (s *GoalService) RemoveGoal(ctx context.Context, userID, symbol string) error {
	if err := s.store.RemoveGoal(ctx, userID, symbol); err != nil {
		return err
	}
	s.logger.Info("Goal removed", slog.String("user_id", userID), slog.String("symbol", domain.NormalizeSymbol(symbol)))
	return nil
}

// ListGoals returns the user's goals, empty if none
func (s *GoalService) ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	return s.store.ListGoals(ctx, userID)
}

// Price fetches the feed and returns the quote for symbol, or nil when the
// feed has no such symbol.
func (s *GoalService) Price(ctx context.Context, symbol string) (*domain.Quote, error) {
	quotes, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FindQuote(quotes, symbol), nil
}

// RunCycle fetches quotes, evaluates every goal and notifies each fired goal.
// A fetch failure aborts the cycle with no notifications. Delivery failures
// are counted and logged but never stop the batch. Overlapping calls get
// domain.ErrCycleInProgress.
func (s *GoalService) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.cycleMu.TryLock() {
		return CycleReport{}, domain.ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	report := CycleReport{ID: uuid.New(), StartedAt: time.Now()}
	logger := s.logger.With(slog.String("cycle_id", report.ID.String()))
	logger.Info("🔄 Goal check started")

	quotes, err := s.fetch(ctx)
	if err != nil {
		s.metrics.RecordAbortedCycle()
		logger.Error("Quote fetch failed, cycle aborted", slog.Any("error", err))
		return report, err
	}
	report.Quotes = len(quotes)

	w := s.store.Load(ctx)
	events, evalErr := domain.Evaluate(w, quotes)
	if evalErr != nil {
		logger.Warn("Some goals could not be evaluated", slog.Any("error", evalErr))
	}
	report.Events = len(events)

	for _, ev := range events {
		if ctx.Err() != nil {
			logger.Warn("Cycle cancelled during delivery", slog.Int("pending", report.Events-report.Delivered-report.Failed))
			break
		}
		if err := s.notifier.Send(ctx, ev.UserID, ev.Message()); err != nil {
			report.Failed++
			s.metrics.RecordDelivery(false)
			logger.Warn("Notification failed",
				slog.String("user_id", ev.UserID),
				slog.String("symbol", ev.Symbol),
				slog.Any("error", err))
			continue
		}
		report.Delivered++
		s.metrics.RecordDelivery(true)
		logger.Info("📈 Goal reached",
			slog.String("user_id", ev.UserID),
			slog.String("symbol", ev.Symbol),
			slog.String("ltp", ev.LastTradedPrice.String()),
			slog.String("goal", ev.GoalPrice.String()))
	}

	report.Duration = time.Since(report.StartedAt)
	s.metrics.RecordCycle(report.Duration, report.Events)
	logger.Info("✨ Goal check completed",
		slog.Int("quotes", report.Quotes),
		slog.Int("fired", report.Events),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (s *GoalService) fetch(ctx context.Context) ([]domain.Quote, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	return s.source.FetchAll(ctx)
}
