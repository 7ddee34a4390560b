package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"nepse_watch/internal/domain"

	"github.com/shopspring/decimal"
)

// fileDocument is the on-disk shape: {"users": {"<id>": {"<SYMBOL>": <number>}}}
type fileDocument struct {
	Users map[string]map[string]json.Number `json:"users"`
}

// rawDocument defers decoding of each user so a bad entry can be skipped.
type rawDocument struct {
	Users map[string]json.RawMessage `json:"users"`
}

// JSONFileStore keeps the watchlist in a single JSON document. Every
// operation reloads from disk; mu serializes load-mutate-save so concurrent
// commands cannot drop each other's writes.
type JSONFileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONFileStore creates a store backed by path. The file need not exist.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{
		path:   path,
		logger: slog.Default().With("module", "watchlist_json"),
	}
}

// Load reads the document, returning an empty watchlist when the file is
// absent or unparseable.
func (s *JSONFileStore) Load(ctx context.Context) *domain.Watchlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONFileStore) load() *domain.Watchlist {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Watchlist unreadable, starting empty", slog.String("path", s.path), slog.Any("error", err))
		}
		return domain.NewWatchlist()
	}

	w, err := decodeDocument(data, s.logger)
	if err != nil {
		s.logger.Warn("Watchlist unparseable, starting empty", slog.String("path", s.path), slog.Any("error", err))
		return domain.NewWatchlist()
	}
	return w
}

// Save rewrites the whole document.
func (s *JSONFileStore) Save(ctx context.Context, w *domain.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(w)
}

func (s *JSONFileStore) save(w *domain.Watchlist) error {
	data, err := encodeDocument(w)
	if err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}
	return nil
}

// AddGoal upserts a goal and persists
func (s *JSONFileStore) AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.load()
	if err := w.SetGoal(userID, symbol, price); err != nil {
		return err
	}
	return s.save(w)
}

// RemoveGoal deletes a goal and persists. Returns domain.ErrGoalNotFound
// without touching the file when absent.
func (s *JSONFileStore) RemoveGoal(ctx context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.load()
	if err := w.DeleteGoal(userID, symbol); err != nil {
		return err
	}
	return s.save(w)
}

// ListGoals returns the user's goals
func (s *JSONFileStore) ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	return s.Load(ctx).Goals(userID), nil
}

// decodeDocument fails only when data is not a JSON object of users. Entries
// that cannot be used are logged and skipped so one bad value never costs the
// rest of the watchlist.
func decodeDocument(data []byte, logger *slog.Logger) (*domain.Watchlist, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	w := domain.NewWatchlist()
	for userID, raw := range doc.Users {
		var goals map[string]json.RawMessage
		if err := json.Unmarshal(raw, &goals); err != nil {
			logger.Warn("Skipping malformed watchlist user", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		w.Users[userID] = decodeGoals(userID, goals, logger)
	}
	return w, nil
}

// decodeGoals normalizes symbol keys. When two keys collide the one already in
// canonical form wins, otherwise the last in sorted order.
func decodeGoals(userID string, goals map[string]json.RawMessage, logger *slog.Logger) map[string]decimal.Decimal {
	keys := make([]string, 0, len(goals))
	for k := range goals {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ac, bc := a == domain.NormalizeSymbol(a), b == domain.NormalizeSymbol(b)
		if ac != bc {
			if ac {
				return 1
			}
			return -1
		}
		return strings.Compare(a, b)
	})

	entry := make(map[string]decimal.Decimal, len(goals))
	for _, key := range keys {
		log := logger.With(slog.String("user_id", userID), slog.String("symbol", key))

		sym := domain.NormalizeSymbol(key)
		if sym == "" {
			log.Warn("Skipping watchlist goal with empty symbol")
			continue
		}
		price, err := decimal.NewFromString(string(goals[key]))
		if err != nil {
			log.Warn("Skipping watchlist goal with non-numeric price", slog.String("value", string(goals[key])))
			continue
		}
		if price.IsNegative() {
			log.Warn("Skipping watchlist goal with negative price", slog.String("value", price.String()))
			continue
		}
		if prev, dup := entry[sym]; dup {
			log.Warn("Duplicate watchlist symbol, replacing earlier goal",
				slog.String("normalized", sym), slog.String("replaced", prev.String()))
		}
		entry[sym] = price
	}
	return entry
}

func encodeDocument(w *domain.Watchlist) ([]byte, error) {
	doc := fileDocument{Users: make(map[string]map[string]json.Number)}
	if w != nil {
		for userID, goals := range w.Users {
			entry := make(map[string]json.Number, len(goals))
			for sym, price := range goals {
				entry[sym] = json.Number(price.String())
			}
			doc.Users[userID] = entry
		}
	}
	return json.MarshalIndent(doc, "", "    ")
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers never observe a half-written document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
