// Package resources validates access targets against the resource catalog.
package resources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gatekeeper/internal/access"
)

var (
	// ErrUnknownResource indicates a target missing from the account catalog.
	ErrUnknownResource = errors.New("resources: unknown resource")
	// ErrNoTargets indicates an empty target list.
	ErrNoTargets = errors.New("resources: no targets")
)

// Entry is a catalogued resource.
type Entry struct {
	ResourceID string
	Name       string
	IP         string
	Platform   string
	Status     string
}

// Store looks up catalog entries scoped to an environment.
type Store interface {
	Lookup(ctx context.Context, env access.Environment, ids []string) (map[string]Entry, error)
}

// PGStore reads the resource_catalog table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Lookup returns entries keyed by resource id.
func (s *PGStore) Lookup(ctx context.Context, env access.Environment, ids []string) (map[string]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT resource_id, name, COALESCE(ip, ''), platform, status
FROM resource_catalog
WHERE UPPER(account) = UPPER($1) AND region = $2 AND resource_id = ANY($3)`, env.Account, env.Region, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]Entry, len(ids))
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ResourceID, &e.Name, &e.IP, &e.Platform, &e.Status); err != nil {
			return nil, err
		}
		out[e.ResourceID] = e
	}
	return out, rows.Err()
}

// Catalog implements access.ResourceValidator.
type Catalog struct {
	store Store
}

// NewCatalog constructs Catalog.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// ValidateTargets fails when any id is not catalogued for the environment.
func (c *Catalog) ValidateTargets(ctx context.Context, env access.Environment, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return ErrNoTargets
	}
	found, err := c.store.Lookup(ctx, env, ids)
	if err != nil {
		return fmt.Errorf("lookup resources: %w", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w in %s/%s: %s", ErrUnknownResource, env.Account, env.Region, strings.Join(missing, ", "))
	}
	return nil
}

// CheckStatus reports the catalogued status of each known id.
func (c *Catalog) CheckStatus(ctx context.Context, env access.Environment, ids []string) (map[string]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	found, err := c.store.Lookup(ctx, env, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup resources: %w", err)
	}
	out := make(map[string]string, len(found))
	for id, e := range found {
		if e.Status != "" {
			out[id] = e.Status
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
