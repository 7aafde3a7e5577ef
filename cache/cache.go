package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrStoreClosed is returned by operations on a store after Close.
	ErrStoreClosed = errors.New("cache: store is closed")
	// ErrAlreadyExpired is returned when a write carries an expiration that is already in the past.
	ErrAlreadyExpired = errors.New("cache: expiration is in the past")
)

// Store is the key-value capability the facade is written against. Payloads are
// opaque bytes; implementations must be safe for concurrent use.
type Store interface {
	// Get returns the payload stored under key. A missing or expired key is
	// reported as found=false with a nil error. Reading an entry with a sliding
	// expiration refreshes it.
	Get(ctx context.Context, key string) (bool, []byte, error)
	// Set stores payload under key with the given expiration policy. A zero
	// Expiration stores the entry without expiry.
	Set(ctx context.Context, key string, payload []byte, exp Expiration) error
	// Remove deletes key, reporting whether something was removed.
	Remove(ctx context.Context, key string) (bool, error)
	// Close shuts down the store.
	Close() error
}

// SetStore is implemented by stores with a native set-add primitive. Members of
// a set key are only reachable through this interface, never through Get.
type SetStore interface {
	Store
	// AddMember inserts member into the set stored under key. The set never expires.
	AddMember(ctx context.Context, key string, member string) error
	// Members returns all members of the set stored under key.
	Members(ctx context.Context, key string) ([]string, error)
}

// Expiration is the TTL policy applied to an entry on write.
type Expiration struct {
	// Absolute expires the entry this long after it was written.
	Absolute time.Duration `json:"absolute" yaml:"absolute"`
	// Sliding expires the entry if it is not read for this long.
	Sliding time.Duration `json:"sliding" yaml:"sliding"`
	// AbsoluteAt is a wall-clock deadline for the entry.
	AbsoluteAt time.Time `json:"absolute_at" yaml:"absolute_at"`
}

// IsZero reports whether no expiration is configured.
func (e Expiration) IsZero() bool {
	return e.Absolute <= 0 && e.Sliding <= 0 && e.AbsoluteAt.IsZero()
}

// Deadlines resolves the policy against a write time. absolute is the hard
// deadline (zero if none); expires is the effective expiry (zero if none).
func (e Expiration) Deadlines(now time.Time) (absolute time.Time, expires time.Time, err error) {
	if e.Absolute > 0 {
		absolute = now.Add(e.Absolute)
	}
	if !e.AbsoluteAt.IsZero() && (absolute.IsZero() || e.AbsoluteAt.Before(absolute)) {
		absolute = e.AbsoluteAt
	}
	if !absolute.IsZero() && !absolute.After(now) {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrAlreadyExpired, "deadline %s", absolute.Format(time.RFC3339))
	}
	expires = absolute
	if e.Sliding > 0 {
		expires = slide(now, e.Sliding, absolute)
	}
	return absolute, expires, nil
}

// slide computes the next expiry of a sliding entry read (or written) at now.
// The result never passes the absolute deadline.
func slide(now time.Time, sliding time.Duration, absolute time.Time) time.Time {
	next := now.Add(sliding)
	if !absolute.IsZero() && absolute.Before(next) {
		return absolute
	}
	return next
}

// DefaultQueryTimeout is the per-operation timeout for stores that perform I/O
// (SQL, Redis).
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	expiryCheck  time.Duration
	prefix       string
	now          func() time.Time
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		queryTimeout: DefaultQueryTimeout,
		expiryCheck:  time.Minute,
		now:          time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval for background expired entry cleanup.
// Applies to InMemory and SQL backends. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix sets an instance prefix for keys. Applies to the Redis backend,
// mirroring the instance name of a shared Redis deployment.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
