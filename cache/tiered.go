package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type tieredStore struct {
	stores []Store
}

// tieredSetStore serves set operations from the last tier only.
type tieredSetStore struct {
	*tieredStore
	sets SetStore
}

var (
	_ Store    = (*tieredStore)(nil)
	_ SetStore = (*tieredSetStore)(nil)
)

// NewTiered returns a Store that chains multiple stores together, typically an
// in-memory L1 in front of a shared L2.
// Get checks stores in order and returns the first hit.
// Set fans out to all stores concurrently when the entry expires. Entries
// without an expiration are written to the last store only, so the front
// tiers never hold a copy that other processes cannot invalidate.
// Remove fans out to all stores concurrently.
// When the last store is a SetStore the result is a SetStore too.
// At least one store must be provided; panics if empty.
func NewTiered(stores ...Store) Store {
	if len(stores) == 0 {
		panic("cache: NewTiered requires at least one store")
	}
	t := &tieredStore{stores: stores}
	if sets, ok := stores[len(stores)-1].(SetStore); ok {
		return &tieredSetStore{tieredStore: t, sets: sets}
	}
	return t
}

func (c *tieredStore) last() Store {
	return c.stores[len(c.stores)-1]
}

func (c *tieredStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	for _, store := range c.stores {
		found, val, err := store.Get(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if found {
			return true, val, nil
		}
	}
	return false, nil, nil
}

func (c *tieredStore) Set(ctx context.Context, key string, payload []byte, exp Expiration) error {
	if exp.IsZero() {
		return c.last().Set(ctx, key, payload, exp)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, store := range c.stores {
		g.Go(func() error {
			return store.Set(gctx, key, payload, exp)
		})
	}
	return g.Wait()
}

func (c *tieredStore) Remove(ctx context.Context, key string) (bool, error) {
	var removed atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, store := range c.stores {
		g.Go(func() error {
			found, err := store.Remove(gctx, key)
			if found {
				removed.Store(true)
			}
			return err
		})
	}
	err := g.Wait()
	return removed.Load(), err
}

func (c *tieredStore) Close() error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *tieredSetStore) AddMember(ctx context.Context, key string, member string) error {
	return c.sets.AddMember(ctx, key, member)
}

func (c *tieredSetStore) Members(ctx context.Context, key string) ([]string, error) {
	return c.sets.Members(ctx, key)
}
