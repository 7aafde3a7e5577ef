package memento

import (
	"context"
	"slices"
	"sync"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/codec"
	"github.com/cockroachdb/errors"
)

// keyIndex tracks the namespaced keys written through a Cache so Clear can
// remove them without a key scan. It lives under IndexKey, outside the key
// prefix, and never expires. Keys whose entries expired or were removed stay
// listed until the index is reset.
//
// Without a native set the index is a serialized list updated by
// read-modify-write. mu serializes those updates within one process; writers
// in other processes sharing the store can still lose each other's keys.
type keyIndex struct {
	store cache.Store
	sets  cache.SetStore
	codec codec.Codec
	mu    sync.Mutex
}

func newKeyIndex(store cache.Store, c codec.Codec, native bool) *keyIndex {
	x := &keyIndex{store: store, codec: c}
	if native {
		if sets, ok := store.(cache.SetStore); ok {
			x.sets = sets
		}
	}
	return x
}

// native reports whether updates use the store's set primitive.
func (x *keyIndex) native() bool {
	return x.sets != nil
}

func (x *keyIndex) load(ctx context.Context) ([]string, error) {
	found, payload, err := x.store.Get(ctx, IndexKey)
	if err != nil {
		return nil, err
	}
	if !found || len(payload) == 0 {
		return nil, nil
	}
	var keys []string
	if err := x.codec.Decode(payload, &keys); err != nil {
		return nil, errors.Wrap(err, "memento: decoding key index")
	}
	return keys, nil
}

// record adds key to the index. An unreadable index is replaced.
func (x *keyIndex) record(ctx context.Context, key string) error {
	if x.sets != nil {
		return x.sets.AddMember(ctx, IndexKey, key)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	keys, err := x.load(ctx)
	if err != nil && !errors.Is(err, codec.ErrDecode) {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	payload, err := x.codec.Encode(append(keys, key))
	if err != nil {
		return err
	}
	return x.store.Set(ctx, IndexKey, payload, cache.Expiration{})
}

func (x *keyIndex) keys(ctx context.Context) ([]string, error) {
	if x.sets != nil {
		return x.sets.Members(ctx, IndexKey)
	}
	return x.load(ctx)
}

func (x *keyIndex) reset(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, err := x.store.Remove(ctx, IndexKey)
	return err
}
