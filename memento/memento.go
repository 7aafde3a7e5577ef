package memento

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/codec"
	"github.com/Matozap/DistributedCache/logger"
	"github.com/Matozap/DistributedCache/resilience"
	"github.com/google/uuid"
)

// Cache is a fail-open facade over a cache.Store. Store and codec errors are
// recorded by a health gate, logged at debug level and turned into a miss or
// a no-op; they never reach the caller. After MaxErrorsAllowed consecutive
// failures the gate stops all store access until the reset interval elapses
// or an operation succeeds.
type Cache struct {
	store     cache.Store
	ownsStore bool
	gate      *resilience.HealthGate
	index     *keyIndex
	codec     codec.Codec
	log       logger.Logger

	prefix            string
	expiration        cache.Expiration
	resetIndexOnClear bool

	// mu orders pending.Add against Wait and Close.
	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

// New wraps store. A nil o uses NewOptions and a nil log discards output.
// The only error returned is a ConfigurationError.
func New(store cache.Store, o *Options, log logger.Logger) (*Cache, error) {
	if o == nil {
		o = NewOptions()
	}
	if err := o.validateFacade(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewConsoleLogger(logger.LevelNone)
	}
	cdc := o.Codec
	if cdc == nil {
		cdc = codec.JSON{}
	}
	now := o.now
	if now == nil {
		now = time.Now
	}
	c := &Cache{
		store:             store,
		index:             newKeyIndex(store, cdc, o.NativeKeyIndex),
		codec:             cdc,
		prefix:            o.Prefix,
		expiration:        o.DefaultExpiration,
		resetIndexOnClear: o.ResetIndexOnClear,
		log: log.WithPrefix("[memento]").With(map[string]interface{}{
			logger.KeyCacheID: uuid.NewString(),
			logger.KeyPrefix:  o.Prefix,
		}),
	}
	policy := o.HealthCheck.Policy()
	c.gate = resilience.NewHealthGate(policy, o.Disabled,
		resilience.WithClock(now),
		resilience.WithHooks(resilience.Hooks{
			Tripped:  c.tripped,
			Reopened: c.reopened,
		}),
	)
	return c, nil
}

func (c *Cache) tripped(maxErrors int, messages []string) {
	breakerTrips.Inc()
	c.log.Warn("cache was disabled after reaching the max number of consecutive errors allowed (%d) - errors found: %s", maxErrors, strings.Join(messages, ", "))
}

func (c *Cache) reopened(disabledFor time.Duration) {
	breakerReopens.Inc()
	c.log.Info("cache was enabled again after being disabled for %s", disabledFor.Round(time.Second))
}

// Key returns the namespaced storage key for a logical key.
func (c *Cache) Key(key string) string {
	return c.prefix + ":" + key
}

// allow consults the gate and counts bypassed operations.
func (c *Cache) allow(op string) bool {
	if c.gate.Allow() {
		return true
	}
	observe(op, outcomeBypass)
	return false
}

func (c *Cache) failed(op string, key string, err error) {
	observe(op, outcomeError)
	logger.WithKV(c.log, logger.KeyOp, op).Debug("could not %s cache key %s - %s", op, key, err)
	c.gate.RecordFailure(err.Error())
}

// read fetches the payload for key. decode runs before the outcome is
// recorded so a decode error counts as a failure.
func (c *Cache) read(ctx context.Context, key string, decode func([]byte) error) bool {
	if !c.allow(opGet) {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.failed(opGet, key, err)
		return false
	}
	found, payload, err := c.store.Get(ctx, c.Key(key))
	if err == nil && found && len(payload) > 0 {
		err = decode(payload)
	}
	if err != nil {
		c.failed(opGet, key, err)
		return false
	}
	c.gate.RecordSuccess()
	if !found || len(payload) == 0 {
		observe(opGet, outcomeMiss)
		return false
	}
	observe(opGet, outcomeHit)
	return true
}

// GetBytes returns the raw payload stored under key.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	var out []byte
	ok := c.read(ctx, key, func(payload []byte) error {
		out = payload
		return nil
	})
	return out, ok
}

// GetString returns the payload stored under key as a string. It reads
// values written with SetString; values written with Set are codec encoded.
func (c *Cache) GetString(ctx context.Context, key string) (string, bool) {
	payload, ok := c.GetBytes(ctx, key)
	if !ok {
		return "", false
	}
	return string(payload), true
}

// Get decodes the value stored under key into a T. A value that does not
// decode as T is a miss and counts as a failure.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T
	ok := c.read(ctx, key, func(payload []byte) error {
		return c.codec.Decode(payload, &out)
	})
	if !ok {
		var zero T
		return zero, false
	}
	return out, true
}

// SetOption overrides a write's defaults.
type SetOption func(*cache.Expiration)

// WithExpiration replaces the default expiration for one write.
func WithExpiration(exp cache.Expiration) SetOption {
	return func(e *cache.Expiration) { *e = exp }
}

func (c *Cache) write(ctx context.Context, key string, encode func() ([]byte, error), opts []SetOption) {
	if !c.allow(opSet) {
		return
	}
	if err := ctx.Err(); err != nil {
		c.failed(opSet, key, err)
		return
	}
	payload, err := encode()
	if err != nil {
		c.failed(opSet, key, err)
		return
	}
	exp := c.expiration
	for _, opt := range opts {
		opt(&exp)
	}
	namespaced := c.Key(key)
	if err := c.store.Set(ctx, namespaced, payload, exp); err != nil {
		c.failed(opSet, key, err)
		return
	}
	c.gate.RecordSuccess()
	observe(opSet, outcomeOK)
	c.recordKey(ctx, namespaced)
}

// recordKey adds key to the index in the background. Failures are logged
// and dropped. Nothing is recorded once Close has started.
func (c *Cache) recordKey(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cache.DefaultQueryTimeout)
		defer cancel()
		if err := c.index.record(ictx, key); err != nil {
			indexUpdateFailures.Inc()
			logger.WithKV(c.log, logger.KeyOp, opSet).Debug("could not add key %s to the key index - %s", key, err)
		}
	}()
}

// SetBytes stores payload under key.
func (c *Cache) SetBytes(ctx context.Context, key string, payload []byte, opts ...SetOption) {
	c.write(ctx, key, func() ([]byte, error) { return payload, nil }, opts)
}

// SetString stores value under key as raw bytes.
func (c *Cache) SetString(ctx context.Context, key string, value string, opts ...SetOption) {
	c.write(ctx, key, func() ([]byte, error) { return []byte(value), nil }, opts)
}

// Set encodes value with the cache codec and stores it under key.
func Set[T any](ctx context.Context, c *Cache, key string, value T, opts ...SetOption) {
	c.write(ctx, key, func() ([]byte, error) { return c.codec.Encode(value) }, opts)
}

// Remove deletes key from the store. The key stays in the key index.
func (c *Cache) Remove(ctx context.Context, key string) {
	if !c.allow(opRemove) {
		return
	}
	if err := ctx.Err(); err != nil {
		c.failed(opRemove, key, err)
		return
	}
	if _, err := c.store.Remove(ctx, c.Key(key)); err != nil {
		c.failed(opRemove, key, err)
		return
	}
	c.gate.RecordSuccess()
	observe(opRemove, outcomeOK)
}

// Clear removes every key in the key index, even while the cache is disabled.
// The index is kept unless the options enable ResetIndexOnClear. It returns
// the number of entries that were present and removed.
func (c *Cache) Clear(ctx context.Context) int {
	return c.clear(ctx, "", c.resetIndexOnClear)
}

// ClearWithPrefix removes the indexed keys whose logical key starts with
// prefix. It never resets the index.
func (c *Cache) ClearWithPrefix(ctx context.Context, prefix string) int {
	return c.clear(ctx, c.Key(prefix), false)
}

func (c *Cache) clear(ctx context.Context, match string, reset bool) int {
	keys, err := c.index.keys(ctx)
	if err != nil {
		c.failed(opClear, IndexKey, err)
		return 0
	}
	removed := 0
	for _, key := range keys {
		if match != "" && !strings.HasPrefix(key, match) {
			continue
		}
		found, err := c.store.Remove(ctx, key)
		if err != nil {
			c.failed(opClear, key, err)
			return removed
		}
		if found {
			removed++
		}
	}
	if reset {
		if err := c.index.reset(ctx); err != nil {
			c.failed(opClear, IndexKey, err)
			return removed
		}
	}
	observe(opClear, outcomeOK)
	if removed > 0 {
		c.log.Info("cache cleared successfully, %d keys removed", removed)
	}
	return removed
}

// Keys returns the namespaced keys currently in the key index.
func (c *Cache) Keys(ctx context.Context) []string {
	keys, err := c.index.keys(ctx)
	if err != nil {
		c.failed(opKeys, IndexKey, err)
		return nil
	}
	observe(opKeys, outcomeOK)
	return keys
}

// Disable stops all store access until Enable or the next successful operation.
func (c *Cache) Disable() {
	c.gate.Disable()
	c.log.Info("cache was disabled manually")
}

// Enable re-enables store access.
func (c *Cache) Enable() {
	c.gate.Enable()
	c.log.Info("cache was enabled manually")
}

// Health returns the current state of the health gate.
func (c *Cache) Health() resilience.Snapshot {
	return c.gate.Snapshot()
}

// Wait blocks until background key index updates have finished.
func (c *Cache) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.Wait()
}

// Close waits for background key index updates and closes the store if the
// Cache opened it.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closing = true
	c.pending.Wait()
	c.mu.Unlock()
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
