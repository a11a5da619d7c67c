// Package accounts resolves the SDLC class of cloud accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "gatekeeper:accounts:sdlc:"

// ErrAccountNotFound indicates the alias is not registered.
var ErrAccountNotFound = errors.New("accounts: account not found")

// Store loads account classification from durable storage.
type Store interface {
	SdlcFor(ctx context.Context, alias string) (string, error)
}

// PGStore reads the accounts table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// SdlcFor returns the SDLC class of the alias.
func (s *PGStore) SdlcFor(ctx context.Context, alias string) (string, error) {
	var sdlc string
	err := s.pool.QueryRow(ctx, `SELECT sdlc FROM accounts WHERE UPPER(alias) = $1`, normalize(alias)).Scan(&sdlc)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, alias)
	}
	if err != nil {
		return "", err
	}
	return strings.ToLower(sdlc), nil
}

// Classifier resolves SDLC classes through a Redis read-through cache.
type Classifier struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewClassifier constructs the classifier. A nil client disables caching.
func NewClassifier(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{store: store, client: client, ttl: ttl, logger: logger}
}

// ClassifySdlc returns the SDLC class of the account alias.
func (c *Classifier) ClassifySdlc(ctx context.Context, alias string) (string, error) {
	alias = normalize(alias)
	if alias == "" {
		return "", fmt.Errorf("%w: empty alias", ErrAccountNotFound)
	}
	key := cacheKeyPrefix + alias
	if c.client != nil {
		sdlc, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			return sdlc, nil
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("account cache read", slog.String("alias", alias), slog.Any("error", err))
		}
	}

	v, err, _ := c.group.Do(alias, func() (interface{}, error) {
		return c.store.SdlcFor(ctx, alias)
	})
	if err != nil {
		return "", err
	}
	sdlc := v.(string)
	if c.client != nil {
		if err := c.client.Set(ctx, key, sdlc, c.ttl).Err(); err != nil {
			c.logger.Warn("account cache write", slog.String("alias", alias), slog.Any("error", err))
		}
	}
	return sdlc, nil
}

// Invalidate drops the cached class of alias.
func (c *Classifier) Invalidate(ctx context.Context, alias string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+normalize(alias)).Err()
}

func normalize(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}
