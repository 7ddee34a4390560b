package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nepse_watch/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// goalRecord is one (user, symbol) goal row
type goalRecord struct {
	UserID    string          `gorm:"primaryKey;size:32"`
	Symbol    string          `gorm:"primaryKey;size:32"`
	Price     decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (goalRecord) TableName() string {
	return "goals"
}

// SQLiteStore keeps goals one row per (user, symbol). Mutations touch a
// single row, so concurrent commands never overwrite each other.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newSQLiteStore(db)
}

func newSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&goalRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &SQLiteStore{
		db:     db,
		logger: slog.Default().With("module", "watchlist_sqlite"),
	}, nil
}

// Load reads all goals. Query failures yield an empty watchlist.
func (s *SQLiteStore) Load(ctx context.Context) *domain.Watchlist {
	var rows []goalRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		s.logger.Warn("Watchlist query failed, starting empty", slog.Any("error", err))
		return domain.NewWatchlist()
	}

	w := domain.NewWatchlist()
	for _, r := range rows {
		if w.Users[r.UserID] == nil {
			w.Users[r.UserID] = make(map[string]decimal.Decimal)
		}
		w.Users[r.UserID][r.Symbol] = r.Price
	}
	return w
}

// Save replaces every row with the contents of w in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, w *domain.Watchlist) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&goalRecord{}).Error; err != nil {
			return err
		}
		var rows []goalRecord
		for _, userID := range w.UserIDs() {
			for sym, price := range w.Users[userID] {
				rows = append(rows, goalRecord{UserID: userID, Symbol: sym, Price: price})
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}
	return nil
}

// AddGoal upserts a single goal
func (s *SQLiteStore) AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.ErrInvalidSymbol
	}
	if price.IsNegative() {
		return domain.ErrInvalidPrice
	}

	rec := &goalRecord{UserID: userID, Symbol: symbol, Price: price}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return &domain.StorageError{Op: "add", Err: err}
	}
	return nil
}

// RemoveGoal deletes a single goal
func (s *SQLiteStore) RemoveGoal(ctx context.Context, userID, symbol string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, domain.NormalizeSymbol(symbol)).
		Delete(&goalRecord{})
	if res.Error != nil {
		return &domain.StorageError{Op: "remove", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// ListGoals returns one user's goals
func (s *SQLiteStore) ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	var rows []goalRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}

	goals := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		goals[r.Symbol] = r.Price
	}
	return goals, nil
}

// Close releases the underlying connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
