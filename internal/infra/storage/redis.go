package storage

import (
	"context"
	"log/slog"
	"strings"

	"nepse_watch/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// RedisStore keeps one hash per user (symbol -> price) plus a set of user
// IDs. Mutations run in MULTI/EXEC, giving atomic per-user updates.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore wraps an existing client. prefix namespaces every key.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		logger: slog.Default().With("module", "watchlist_redis"),
	}
}

func (s *RedisStore) usersKey() string {
	return s.prefix + ":users"
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Load reads every user hash. Connection failures yield an empty watchlist.
func (s *RedisStore) Load(ctx context.Context) *domain.Watchlist {
	w := domain.NewWatchlist()

	ids, err := s.rdb.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		s.logger.Warn("Watchlist users unreadable, starting empty", slog.Any("error", err))
		return w
	}

	for _, id := range ids {
		goals, err := s.readUser(ctx, id)
		if err != nil {
			s.logger.Warn("Watchlist user unreadable, starting empty", slog.String("user_id", id), slog.Any("error", err))
			return domain.NewWatchlist()
		}
		w.Users[id] = goals
	}
	return w
}

func (s *RedisStore) readUser(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	raw, err := s.rdb.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	goals := make(map[string]decimal.Decimal, len(raw))
	for sym, v := range raw {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		goals[sym] = price
	}
	return goals, nil
}

// Save replaces all stored users with w atomically.
func (s *RedisStore) Save(ctx context.Context, w *domain.Watchlist) error {
	existing, err := s.rdb.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := []string{s.usersKey()}
		for _, id := range existing {
			keys = append(keys, s.userKey(id))
		}
		pipe.Del(ctx, keys...)

		for _, id := range w.UserIDs() {
			pipe.SAdd(ctx, s.usersKey(), id)
			goals := w.Users[id]
			if len(goals) == 0 {
				continue
			}
			fields := make([]interface{}, 0, len(goals)*2)
			for sym, price := range goals {
				fields = append(fields, sym, price.String())
			}
			pipe.HSet(ctx, s.userKey(id), fields...)
		}
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}
	return nil
}

// AddGoal upserts one goal
func (s *RedisStore) AddGoal(ctx context.Context, userID, symbol string, price decimal.Decimal) error {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.ErrInvalidSymbol
	}
	if price.IsNegative() {
		return domain.ErrInvalidPrice
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.usersKey(), userID)
		pipe.HSet(ctx, s.userKey(userID), symbol, price.String())
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "add", Err: err}
	}
	return nil
}

// RemoveGoal deletes one goal. The user stays in the user set.
func (s *RedisStore) RemoveGoal(ctx context.Context, userID, symbol string) error {
	n, err := s.rdb.HDel(ctx, s.userKey(userID), domain.NormalizeSymbol(symbol)).Result()
	if err != nil {
		return &domain.StorageError{Op: "remove", Err: err}
	}
	if n == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// ListGoals returns one user's goals
func (s *RedisStore) ListGoals(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	goals, err := s.readUser(ctx, userID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	return goals, nil
}

// Close releases the client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// NewRedisClient builds a go-redis client for addr
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(addr),
		Password: password,
		DB:       db,
	})
}
