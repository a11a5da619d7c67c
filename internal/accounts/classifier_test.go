package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu    sync.Mutex
	sdlc  map[string]string
	calls int
}

func (s *countingStore) SdlcFor(_ context.Context, alias string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	sdlc, ok := s.sdlc[alias]
	if !ok {
		return "", ErrAccountNotFound
	}
	return sdlc, nil
}

func setupClassifier(t *testing.T) (*Classifier, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &countingStore{sdlc: map[string]string{"QA1": "qa", "PROD1": "prod"}}
	return NewClassifier(store, client, time.Minute, nil), store, mr
}

func TestClassifySdlcCachesResult(t *testing.T) {
	c, store, mr := setupClassifier(t)
	ctx := context.Background()

	sdlc, err := c.ClassifySdlc(ctx, " qa1 ")
	require.NoError(t, err)
	require.Equal(t, "qa", sdlc)
	sdlc, err = c.ClassifySdlc(ctx, "QA1")
	require.NoError(t, err)
	require.Equal(t, "qa", sdlc)
	require.Equal(t, 1, store.calls)

	cached, err := mr.Get(cacheKeyPrefix + "QA1")
	require.NoError(t, err)
	require.Equal(t, "qa", cached)

	mr.FastForward(2 * time.Minute)
	_, err = c.ClassifySdlc(ctx, "qa1")
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestClassifySdlcUnknownAccount(t *testing.T) {
	c, _, mr := setupClassifier(t)
	_, err := c.ClassifySdlc(context.Background(), "nope")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.False(t, mr.Exists(cacheKeyPrefix+"NOPE"))

	_, err = c.ClassifySdlc(context.Background(), "  ")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClassifySdlcFallsBackWhenRedisDown(t *testing.T) {
	c, store, mr := setupClassifier(t)
	mr.Close()

	sdlc, err := c.ClassifySdlc(context.Background(), "prod1")
	require.NoError(t, err)
	require.Equal(t, "prod", sdlc)
	require.Equal(t, 1, store.calls)
}

func TestInvalidate(t *testing.T) {
	c, store, _ := setupClassifier(t)
	ctx := context.Background()
	_, err := c.ClassifySdlc(ctx, "qa1")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "qa1"))
	_, err = c.ClassifySdlc(ctx, "qa1")
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}
