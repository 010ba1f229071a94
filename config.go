package leafid

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxStep is the upper bound on adaptive step width.
	DefaultMaxStep int32 = 1_000_000

	// DefaultSegmentDuration is the target lifetime of one segment;
	// it steers adaptive step resizing.
	DefaultSegmentDuration = 15 * time.Minute

	// DefaultUpdateCacheInterval is the cadence of periodic
	// reconciliation against the database.
	DefaultUpdateCacheInterval = 60 * time.Second

	// defaultCleanupGrace multiplies UpdateCacheInterval to determine
	// how long a lazily-created buffer may go without a database refill
	// before it is evicted from the cache.
	defaultCleanupGrace = 2
)

// Config holds the tunables for an IDGen. Build one with NewConfig and
// the With* options; the zero value is not ready to use.
type Config struct {
	isLazy              bool
	maxStep             int32
	segmentDuration     time.Duration
	updateCacheInterval time.Duration
	logger              *zap.Logger
}

// Option configures a Config.
type Option func(*Config)

// NewConfig returns a Config with the documented defaults, eager mode,
// and a no-op logger. Apply opts to override any field.
func NewConfig(opts ...Option) Config {
	c := Config{
		isLazy:              false,
		maxStep:             DefaultMaxStep,
		segmentDuration:     DefaultSegmentDuration,
		updateCacheInterval: DefaultUpdateCacheInterval,
		logger:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLazy toggles lazy mode: tags are loaded into the cache on first
// Get rather than in bulk at Init, and buffers that have not been
// refilled recently are evicted on a TTL sweep instead of a full
// database diff.
func WithLazy(lazy bool) Option {
	return func(c *Config) { c.isLazy = lazy }
}

// WithMaxStep sets the upper bound on adaptive step width.
func WithMaxStep(step int32) Option {
	return func(c *Config) { c.maxStep = step }
}

// WithSegmentDuration sets the target lifetime of one segment.
func WithSegmentDuration(d time.Duration) Option {
	return func(c *Config) { c.segmentDuration = d }
}

// WithUpdateCacheInterval sets the cadence of periodic reconciliation.
func WithUpdateCacheInterval(d time.Duration) Option {
	return func(c *Config) { c.updateCacheInterval = d }
}

// WithLogger attaches a logger. Passing nil restores the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	}
}

// IsLazy reports whether the config requests lazy mode.
func (c Config) IsLazy() bool { return c.isLazy }

// MaxStep returns the configured step ceiling.
func (c Config) MaxStep() int32 { return c.maxStep }

// SegmentDuration returns the configured target segment lifetime.
func (c Config) SegmentDuration() time.Duration { return c.segmentDuration }

// UpdateCacheInterval returns the configured reconciliation cadence.
func (c Config) UpdateCacheInterval() time.Duration { return c.updateCacheInterval }
