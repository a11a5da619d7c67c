package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gatekeeper/internal/access"
)

type stubStore struct {
	entries map[string]Entry
	err     error
	lastIDs []string
}

func (s *stubStore) Lookup(_ context.Context, _ access.Environment, ids []string) (map[string]Entry, error) {
	s.lastIDs = ids
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]Entry)
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func newStub() *stubStore {
	return &stubStore{entries: map[string]Entry{
		"i-1": {ResourceID: "i-1", Name: "web", Platform: "Linux", Status: "running"},
		"i-2": {ResourceID: "i-2", Name: "db", Platform: "Database"},
	}}
}

var env = access.Environment{Account: "QA1", Region: "us-east-1"}

func TestValidateTargets(t *testing.T) {
	store := newStub()
	c := NewCatalog(store)

	require.NoError(t, c.ValidateTargets(context.Background(), env, []string{"i-1", "i-2", "i-1", " "}))
	require.Equal(t, []string{"i-1", "i-2"}, store.lastIDs)

	err := c.ValidateTargets(context.Background(), env, []string{"i-1", "i-9", "i-3"})
	require.ErrorIs(t, err, ErrUnknownResource)
	require.Contains(t, err.Error(), "i-3, i-9")

	require.ErrorIs(t, c.ValidateTargets(context.Background(), env, nil), ErrNoTargets)
}

func TestValidateTargetsStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("boom")}
	err := NewCatalog(store).ValidateTargets(context.Background(), env, []string{"i-1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownResource)
}

func TestCheckStatus(t *testing.T) {
	c := NewCatalog(newStub())
	statuses, err := c.CheckStatus(context.Background(), env, []string{"i-1", "i-2", "i-3"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"i-1": "running"}, statuses)

	statuses, err = c.CheckStatus(context.Background(), env, nil)
	require.NoError(t, err)
	require.Empty(t, statuses)
}
