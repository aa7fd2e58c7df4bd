package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Typed wraps a Store with JSON serialization, a key prefix and a fixed TTL
// for one entity kind. Keys take the form "<prefix>:<id>".
type Typed[V any] struct {
	store  Store
	prefix string
	ttl    time.Duration
	stats  Statistics
}

// NewTyped creates a typed namespace over store. The prefix must be unique
// per entity kind to keep invalidation targeted.
func NewTyped[V any](store Store, prefix string, ttl time.Duration) *Typed[V] {
	return &Typed[V]{store: store, prefix: prefix, ttl: ttl}
}

// Key returns the deterministic cache key for id.
func (t *Typed[V]) Key(id string) string {
	return t.prefix + ":" + id
}

// Get retrieves and deserializes the entry for id. A deserialization failure
// counts as a miss: the stale or corrupt entry is deleted so the caller
// repopulates from the store of record.
func (t *Typed[V]) Get(ctx context.Context, id string) (*V, bool, error) {
	raw, found, err := t.store.Get(ctx, t.Key(id))
	if err != nil {
		return nil, false, err
	}
	if !found {
		t.stats.miss()
		return nil, false, nil
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		t.stats.miss()
		_ = t.store.Delete(ctx, t.Key(id))
		return nil, false, nil
	}

	t.stats.hit()
	return &value, true, nil
}

// Set serializes and stores value under id with the namespace TTL.
func (t *Typed[V]) Set(ctx context.Context, id string, value *V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, t.Key(id), raw, t.ttl); err != nil {
		return err
	}
	t.stats.set()
	return nil
}

// Delete removes the entry for id. Exposed for explicit invalidation after
// configuration edits.
func (t *Typed[V]) Delete(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, t.Key(id)); err != nil {
		return err
	}
	t.stats.delete()
	return nil
}

// Stats returns namespace counters.
func (t *Typed[V]) Stats() Stats {
	return t.stats.Snapshot()
}
