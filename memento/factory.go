package memento

import (
	"context"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/logger"
	cstr "github.com/Matozap/DistributedCache/string"
	"github.com/cockroachdb/errors"
)

// NewStore validates o and opens the store it describes. The returned store
// owns its connections and must be closed by the caller.
func NewStore(ctx context.Context, o *Options) (cache.Store, error) {
	if o == nil {
		o = NewOptions()
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	switch o.Type {
	case TypeInMemory:
		return cache.NewInMemory(ctx), nil
	case TypeRedis:
		store, err := cache.OpenRedis(o.ConnectionString, cache.WithPrefix(o.InstanceName))
		if err != nil {
			return nil, errors.Mark(err, ErrConfiguration)
		}
		return store, nil
	case TypeSQLite, TypePostgres:
		driver := cache.DriverSQLite
		if o.Type == TypePostgres {
			driver = cache.DriverPostgres
		}
		store, err := cache.OpenSQL(ctx, driver, o.ConnectionString, o.InstanceName)
		if err != nil {
			return nil, errors.Wrapf(err, "memento: opening %s store", o.Type)
		}
		return store, nil
	case TypeTiered:
		remote, err := cache.OpenRedis(o.ConnectionString, cache.WithPrefix(o.InstanceName))
		if err != nil {
			return nil, errors.Mark(err, ErrConfiguration)
		}
		return cache.NewTiered(cache.NewInMemory(ctx), remote), nil
	}
	return nil, configErrorf("memento: unknown cache type %q", o.Type)
}

// Open opens the store described by o and wraps it in a Cache that closes the
// store on Close.
func Open(ctx context.Context, o *Options, log logger.Logger) (*Cache, error) {
	store, err := NewStore(ctx, o)
	if err != nil {
		return nil, err
	}
	c, err := New(store, o, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.ownsStore = true
	c.log.Debug("opened %s store %s", o.Type, cstr.MaskConnection(o.ConnectionString))
	return c, nil
}
