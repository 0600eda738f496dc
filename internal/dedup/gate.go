// Package dedup filters out posts that have already been ingested.
package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ideahunter/pkg/models"
)

// ExistenceChecker reports which ids are already stored.
type ExistenceChecker interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// SeenCache is a non-authoritative record of ingested ids. Its entries are
// reconciled against the store on every lookup.
type SeenCache interface {
	Seen(ctx context.Context, ids []string) (map[string]struct{}, error)
	MarkSeen(ctx context.Context, ids []string) error
	Forget(ctx context.Context, ids []string) error
}

// Gate drops posts that were ingested before or repeat within a batch.
type Gate struct {
	store ExistenceChecker
	cache SeenCache
}

// Option configures a Gate.
type Option func(*Gate)

// WithCache puts a seen-set in front of the store.
func WithCache(cache SeenCache) Option {
	return func(g *Gate) { g.cache = cache }
}

// NewGate creates a gate backed by store.
func NewGate(store ExistenceChecker, opts ...Option) *Gate {
	g := &Gate{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FilterNew returns the posts whose ids are not stored, keeping the first
// occurrence of an id repeated within posts. Order is preserved. The store
// decides; cache entries it does not confirm are evicted and stored ids the
// cache lacks are added.
func (g *Gate) FilterNew(ctx context.Context, posts []models.RawPost) ([]models.RawPost, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	unique := make([]models.RawPost, 0, len(posts))
	inBatch := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if _, dup := inBatch[p.ID]; dup {
			continue
		}
		inBatch[p.ID] = struct{}{}
		unique = append(unique, p)
	}
	batchIDs := postIDs(unique)

	existing, err := g.store.ExistingIDs(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("checking stored posts: %w", err)
	}

	fresh := make([]models.RawPost, 0, len(unique))
	for _, p := range unique {
		if _, ok := existing[p.ID]; !ok {
			fresh = append(fresh, p)
		}
	}

	g.reconcile(ctx, batchIDs, existing)

	log.Debug().
		Int("in", len(posts)).
		Int("unique", len(unique)).
		Int("new", len(fresh)).
		Msg("Dedup gate")
	return fresh, nil
}

// reconcile brings the cache in line with the store for ids.
func (g *Gate) reconcile(ctx context.Context, ids []string, existing map[string]struct{}) {
	if g.cache == nil {
		return
	}
	seen, err := g.cache.Seen(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("Seen-set lookup failed")
		return
	}

	var stale, missing []string
	for _, id := range ids {
		_, cached := seen[id]
		_, stored := existing[id]
		switch {
		case cached && !stored:
			stale = append(stale, id)
		case stored && !cached:
			missing = append(missing, id)
		}
	}

	if len(stale) > 0 {
		log.Warn().Int("ids", len(stale)).Msg("Evicting seen-set entries missing from the store")
		if err := g.cache.Forget(ctx, stale); err != nil {
			log.Warn().Err(err).Int("ids", len(stale)).Msg("Failed to evict seen-set entries")
		}
	}
	if len(missing) > 0 {
		g.remember(ctx, missing)
	}
}

// MarkStored records ids that were just persisted in the seen-set.
func (g *Gate) MarkStored(ctx context.Context, ids ...string) {
	if len(ids) > 0 {
		g.remember(ctx, ids)
	}
}

func (g *Gate) remember(ctx context.Context, ids []string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.MarkSeen(ctx, ids); err != nil {
		log.Warn().Err(err).Int("ids", len(ids)).Msg("Failed to update seen-set")
	}
}

func postIDs(posts []models.RawPost) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
