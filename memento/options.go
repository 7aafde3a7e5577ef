package memento

import (
	"os"
	"strings"
	"time"

	"github.com/Matozap/DistributedCache/cache"
	"github.com/Matozap/DistributedCache/codec"
	"github.com/Matozap/DistributedCache/env"
	"github.com/Matozap/DistributedCache/resilience"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks setup errors: missing connection data, unknown
// backends, invalid health policies and unreadable config files. It is the
// only error a caller ever sees from this package, and only at setup.
var ErrConfiguration = errors.New("memento: invalid configuration")

// CacheType selects the store realization.
type CacheType string

const (
	TypeInMemory CacheType = "inmemory"
	TypeRedis    CacheType = "redis"
	TypeSQLite   CacheType = "sqlite"
	TypePostgres CacheType = "postgres"
	// TypeTiered puts an in-memory store in front of Redis.
	TypeTiered CacheType = "tiered"
)

const (
	// EnvServiceName overrides the key prefix.
	EnvServiceName = "SERVICE_NAME"
	// DefaultPrefix is the key prefix when SERVICE_NAME is unset.
	DefaultPrefix = "memento"
	// DefaultInstanceName is the Redis key prefix and SQL table name used when none is configured.
	DefaultInstanceName = "memento_cache"
	// IndexKey is the reserved, un-prefixed key holding the key index.
	IndexKey = "ICacheAllKeys"
)

// ParseCacheType maps a case-insensitive name to a CacheType.
func ParseCacheType(s string) (CacheType, error) {
	switch t := CacheType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeInMemory, TypeRedis, TypeSQLite, TypePostgres, TypeTiered:
		return t, nil
	case "memory", "":
		return TypeInMemory, nil
	case "postgresql", "pg":
		return TypePostgres, nil
	}
	return "", errors.Mark(errors.Newf("memento: unknown cache type %q", s), ErrConfiguration)
}

// HealthCheck is the breaker policy expressed the way operators configure it.
type HealthCheck struct {
	Enabled              bool `yaml:"enabled"`
	MaxErrorsAllowed     int  `yaml:"max_errors_allowed"`
	ResetIntervalMinutes int  `yaml:"reset_interval_minutes"`
}

// Policy converts the health check settings to a resilience.HealthPolicy.
func (h HealthCheck) Policy() resilience.HealthPolicy {
	return resilience.HealthPolicy{
		Enabled:          h.Enabled,
		MaxErrorsAllowed: h.MaxErrorsAllowed,
		ResetInterval:    time.Duration(h.ResetIntervalMinutes) * time.Minute,
	}
}

// Options configures a Cache and the store behind it. Build it with
// NewOptions and the chained setters.
type Options struct {
	Type              CacheType
	ConnectionString  string
	InstanceName      string
	HealthCheck       HealthCheck
	Disabled          bool
	DefaultExpiration cache.Expiration
	Prefix            string
	ResetIndexOnClear bool
	NativeKeyIndex    bool
	Codec             codec.Codec

	now func() time.Time
}

// NewOptions returns the default options: in-memory store, health check
// enabled with 5 errors and a 5 minute reset, entries expiring 60 seconds
// after write or 30 seconds after the last read.
func NewOptions() *Options {
	policy := resilience.DefaultHealthPolicy()
	return &Options{
		Type:         TypeInMemory,
		InstanceName: DefaultInstanceName,
		HealthCheck: HealthCheck{
			Enabled:              policy.Enabled,
			MaxErrorsAllowed:     policy.MaxErrorsAllowed,
			ResetIntervalMinutes: int(policy.ResetInterval / time.Minute),
		},
		DefaultExpiration: cache.Expiration{
			Absolute: 60 * time.Second,
			Sliding:  30 * time.Second,
		},
		Prefix: env.String(EnvServiceName, DefaultPrefix),
		Codec:  codec.JSON{},
		now:    time.Now,
	}
}

// Configure selects the backend. instanceName is the Redis key prefix or the
// SQL table name; an empty value keeps the current one.
func (o *Options) Configure(cacheType CacheType, connectionString string, instanceName string) *Options {
	o.Type = cacheType
	o.ConnectionString = connectionString
	if instanceName != "" {
		o.InstanceName = instanceName
	}
	return o
}

func (o *Options) SetInstanceName(instanceName string) *Options {
	o.InstanceName = instanceName
	return o
}

func (o *Options) ConfigureHealthCheck(enabled bool, maxErrorsAllowed int, resetIntervalMinutes int) *Options {
	o.HealthCheck = HealthCheck{
		Enabled:              enabled,
		MaxErrorsAllowed:     maxErrorsAllowed,
		ResetIntervalMinutes: resetIntervalMinutes,
	}
	return o
}

// DisableCache starts the cache in the manually disabled state.
func (o *Options) DisableCache(disabled bool) *Options {
	o.Disabled = disabled
	return o
}

func (o *Options) SetDefaultExpiration(exp cache.Expiration) *Options {
	o.DefaultExpiration = exp
	return o
}

func (o *Options) SetPrefix(prefix string) *Options {
	o.Prefix = prefix
	return o
}

// SetResetIndexOnClear makes Clear remove the key index after a successful
// bulk removal. Off by default, which leaves already removed keys in the index.
func (o *Options) SetResetIndexOnClear(reset bool) *Options {
	o.ResetIndexOnClear = reset
	return o
}

// SetNativeKeyIndex keeps the key index in a native set when the store
// supports one, so concurrent writers cannot lose each other's keys.
func (o *Options) SetNativeKeyIndex(native bool) *Options {
	o.NativeKeyIndex = native
	return o
}

func (o *Options) SetCodec(c codec.Codec) *Options {
	o.Codec = c
	return o
}

// SetClock overrides the time source of the health gate.
func (o *Options) SetClock(now func() time.Time) *Options {
	o.now = now
	return o
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// validateFacade checks the settings the facade itself depends on.
func (o *Options) validateFacade() error {
	if o.HealthCheck.MaxErrorsAllowed < 1 {
		return configErrorf("memento: max errors allowed must be at least 1, got %d", o.HealthCheck.MaxErrorsAllowed)
	}
	if o.HealthCheck.ResetIntervalMinutes < 0 {
		return configErrorf("memento: reset interval must not be negative, got %d", o.HealthCheck.ResetIntervalMinutes)
	}
	if o.Prefix == "" {
		return configErrorf("memento: key prefix must not be empty")
	}
	if o.DefaultExpiration.Absolute < 0 || o.DefaultExpiration.Sliding < 0 {
		return configErrorf("memento: default expiration must not be negative")
	}
	return nil
}

// Validate reports a ConfigurationError for options that cannot produce a store.
func (o *Options) Validate() error {
	if _, err := ParseCacheType(string(o.Type)); err != nil {
		return err
	}
	if o.Type != TypeInMemory && o.ConnectionString == "" {
		return configErrorf("memento: a connection string is required for cache type %s", o.Type)
	}
	if o.Type != TypeInMemory && o.InstanceName == "" {
		return configErrorf("memento: an instance name is required for cache type %s", o.Type)
	}
	return o.validateFacade()
}

type fileHealthCheck struct {
	Enabled              *bool `yaml:"enabled"`
	MaxErrorsAllowed     *int  `yaml:"max_errors_allowed"`
	ResetIntervalMinutes *int  `yaml:"reset_interval_minutes"`
}

type fileExpiration struct {
	Absolute string `yaml:"absolute"`
	Sliding  string `yaml:"sliding"`
}

type fileOptions struct {
	Type              string           `yaml:"type"`
	Connection        string           `yaml:"connection"`
	Instance          string           `yaml:"instance"`
	Prefix            string           `yaml:"prefix"`
	Codec             string           `yaml:"codec"`
	Disabled          *bool            `yaml:"disabled"`
	ResetIndexOnClear *bool            `yaml:"reset_index_on_clear"`
	NativeKeyIndex    *bool            `yaml:"native_key_index"`
	HealthCheck       *fileHealthCheck `yaml:"health_check"`
	Expiration        *fileExpiration  `yaml:"expiration"`
}

func parseExpiration(absolute, sliding string, base cache.Expiration) (cache.Expiration, error) {
	exp := base
	if absolute != "" {
		d, err := env.ParseDuration(absolute)
		if err != nil {
			return exp, errors.Mark(errors.Wrapf(err, "memento: invalid absolute expiration %q", absolute), ErrConfiguration)
		}
		exp.Absolute = d
	}
	if sliding != "" {
		d, err := env.ParseDuration(sliding)
		if err != nil {
			return exp, errors.Mark(errors.Wrapf(err, "memento: invalid sliding expiration %q", sliding), ErrConfiguration)
		}
		exp.Sliding = d
	}
	return exp, nil
}

func codecByName(name string) (codec.Codec, error) {
	c, ok := codec.ByName(name)
	if !ok {
		return nil, configErrorf("memento: unknown codec %q", name)
	}
	return c, nil
}

// LoadOptions reads options from a YAML file. Fields absent from the file
// keep their defaults. The result is not validated.
func LoadOptions(path string) (*Options, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "memento: reading %s", path), ErrConfiguration)
	}
	var f fileOptions
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "memento: parsing %s", path), ErrConfiguration)
	}
	o := NewOptions()
	if f.Type != "" {
		t, err := ParseCacheType(f.Type)
		if err != nil {
			return nil, err
		}
		o.Type = t
	}
	o.ConnectionString = f.Connection
	if f.Instance != "" {
		o.InstanceName = f.Instance
	}
	if f.Prefix != "" {
		o.Prefix = f.Prefix
	}
	if f.Codec != "" {
		if o.Codec, err = codecByName(f.Codec); err != nil {
			return nil, err
		}
	}
	if f.Disabled != nil {
		o.Disabled = *f.Disabled
	}
	if f.ResetIndexOnClear != nil {
		o.ResetIndexOnClear = *f.ResetIndexOnClear
	}
	if f.NativeKeyIndex != nil {
		o.NativeKeyIndex = *f.NativeKeyIndex
	}
	if hc := f.HealthCheck; hc != nil {
		if hc.Enabled != nil {
			o.HealthCheck.Enabled = *hc.Enabled
		}
		if hc.MaxErrorsAllowed != nil {
			o.HealthCheck.MaxErrorsAllowed = *hc.MaxErrorsAllowed
		}
		if hc.ResetIntervalMinutes != nil {
			o.HealthCheck.ResetIntervalMinutes = *hc.ResetIntervalMinutes
		}
	}
	if f.Expiration != nil {
		if o.DefaultExpiration, err = parseExpiration(f.Expiration.Absolute, f.Expiration.Sliding, o.DefaultExpiration); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Environment variables read by LoadOptionsFromEnv.
const (
	EnvType              = "MEMENTO_TYPE"
	EnvConnection        = "MEMENTO_CONNECTION"
	EnvInstance          = "MEMENTO_INSTANCE"
	EnvDisabled          = "MEMENTO_DISABLED"
	EnvHealthEnabled     = "MEMENTO_HEALTH_ENABLED"
	EnvHealthMaxErrors   = "MEMENTO_HEALTH_MAX_ERRORS"
	EnvHealthResetMins   = "MEMENTO_HEALTH_RESET_MINUTES"
	EnvExpirationAbs     = "MEMENTO_EXPIRATION_ABSOLUTE"
	EnvExpirationSliding = "MEMENTO_EXPIRATION_SLIDING"
	EnvResetIndexOnClear = "MEMENTO_RESET_INDEX_ON_CLEAR"
	EnvNativeKeyIndex    = "MEMENTO_NATIVE_KEY_INDEX"
	EnvCodec             = "MEMENTO_CODEC"
)

// LoadOptionsFromEnv builds options from MEMENTO_* variables, loading a .env
// file from the working directory first when one exists. The result is not
// validated.
func LoadOptionsFromEnv() (*Options, error) {
	_ = godotenv.Load()

	o := NewOptions()
	t, err := ParseCacheType(env.String(EnvType, string(TypeInMemory)))
	if err != nil {
		return nil, err
	}
	o.Type = t
	o.ConnectionString = env.String(EnvConnection, "")
	o.InstanceName = env.String(EnvInstance, o.InstanceName)
	o.Disabled = env.Bool(EnvDisabled, o.Disabled)
	o.ResetIndexOnClear = env.Bool(EnvResetIndexOnClear, o.ResetIndexOnClear)
	o.NativeKeyIndex = env.Bool(EnvNativeKeyIndex, o.NativeKeyIndex)
	o.HealthCheck.Enabled = env.Bool(EnvHealthEnabled, o.HealthCheck.Enabled)
	o.HealthCheck.MaxErrorsAllowed = env.Int(EnvHealthMaxErrors, o.HealthCheck.MaxErrorsAllowed)
	o.HealthCheck.ResetIntervalMinutes = env.Int(EnvHealthResetMins, o.HealthCheck.ResetIntervalMinutes)
	if o.DefaultExpiration, err = parseExpiration(os.Getenv(EnvExpirationAbs), os.Getenv(EnvExpirationSliding), o.DefaultExpiration); err != nil {
		return nil, err
	}
	if name := os.Getenv(EnvCodec); name != "" {
		if o.Codec, err = codecByName(name); err != nil {
			return nil, err
		}
	}
	return o, nil
}
