package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	payload  []byte
	absolute time.Time
	sliding  time.Duration
	expires  time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !e.expires.After(now)
}

type inMemoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*entry
	sets      map[string]map[string]struct{}
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	closed    bool
	cfg       config
}

var _ SetStore = (*inMemoryStore)(nil)

func (c *inMemoryStore) Get(_ context.Context, key string) (bool, []byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false, nil, ErrStoreClosed
	}
	val, ok := c.entries[key]
	if !ok {
		return false, nil, nil
	}
	now := c.cfg.now()
	if val.expired(now) {
		delete(c.entries, key)
		return false, nil, nil
	}
	if val.sliding > 0 {
		val.expires = slide(now, val.sliding, val.absolute)
	}
	out := make([]byte, len(val.payload))
	copy(out, val.payload)
	return true, out, nil
}

func (c *inMemoryStore) Set(_ context.Context, key string, payload []byte, exp Expiration) error {
	absolute, expires, err := exp.Deadlines(c.cfg.now())
	if err != nil {
		return err
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrStoreClosed
	}
	c.entries[key] = &entry{
		payload:  stored,
		absolute: absolute,
		sliding:  exp.Sliding,
		expires:  expires,
	}
	return nil
}

func (c *inMemoryStore) Remove(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false, ErrStoreClosed
	}
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	if _, found := c.sets[key]; found {
		delete(c.sets, key)
		ok = true
	}
	return ok, nil
}

func (c *inMemoryStore) AddMember(_ context.Context, key string, member string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrStoreClosed
	}
	set, ok := c.sets[key]
	if !ok {
		set = make(map[string]struct{})
		c.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (c *inMemoryStore) Members(_ context.Context, key string) ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil, ErrStoreClosed
	}
	set := c.sets[key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

func (c *inMemoryStore) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		c.mutex.Lock()
		c.closed = true
		c.entries = nil
		c.sets = nil
		c.mutex.Unlock()
	})
	return nil
}

func (c *inMemoryStore) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			now := c.cfg.now()
			c.mutex.Lock()
			for key, val := range c.entries {
				if val.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

// NewInMemory returns a volatile in-process Store. Expired entries are removed
// lazily on read and by a background goroutine every expiry check interval.
func NewInMemory(parent context.Context, opts ...Option) SetStore {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &inMemoryStore{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		sets:    make(map[string]map[string]struct{}),
		cfg:     cfg,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}
