package eio

import (
	"time"

	"github.com/brightloom/sio/metrics"
)

// Config holds the tunables for an Engine.IO Engine, grounded on the
// teacher's servers/engine/config.ServerOptions but flattened from its
// Optional[T]-wrapped getter/setter interface into a plain struct built
// through functional options (see Option), which is enough for a
// single-process server. The zero value sets every duration to zero;
// DefaultConfig holds the working defaults.
type Config struct {
	// PingInterval is how often the server sends a heartbeat Ping.
	PingInterval time.Duration
	// PingTimeout is how long the server waits for the matching Pong
	// before considering the session dead.
	PingTimeout time.Duration
	// UpgradeTimeout is carried in Config, but the upgrade handshake does
	// not read it: no deadline is applied to the probe.
	UpgradeTimeout time.Duration
	// MaxHTTPBufferSize caps the size of a single packet or polling
	// payload body, in bytes.
	MaxHTTPBufferSize int64
	// AllowUpgrades disables transport upgrade advertisement entirely
	// when false (clients stay on their initial transport).
	AllowUpgrades bool
	// Path is the conventional URL path prefix, e.g. "/engine.io/". Engine
	// does not read it: it answers on whatever path its handler is mounted
	// at.
	Path string
	// AllowEIO3 is carried in Config, but the handshake does not read it: a
	// client sending EIO=3 is served protocol 3 whatever its value.
	AllowEIO3 bool
	// OutboundQueueSize bounds how many undelivered packets a Session will
	// buffer before Send starts returning sioerr.ErrBufferFull.
	OutboundQueueSize int
	// Metrics receives Prometheus instrumentation for every session this
	// Engine creates. Nil (the default) records nothing.
	Metrics *metrics.Collectors
}

// Option mutates a Config being built by NewConfig.
type Option func(*Config)

// DefaultConfig mirrors the teacher's BaseServer.Construct defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:      25 * time.Second,
		PingTimeout:       20 * time.Second,
		UpgradeTimeout:    10 * time.Second,
		MaxHTTPBufferSize: 1e6,
		AllowUpgrades:     true,
		Path:              "/engine.io/",
		AllowEIO3:         false,
		OutboundQueueSize: 256,
	}
}

// NewConfig builds a Config starting from DefaultConfig and applying opts in
// order.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithPingInterval(d time.Duration) Option { return func(c *Config) { c.PingInterval = d } }
func WithPingTimeout(d time.Duration) Option   { return func(c *Config) { c.PingTimeout = d } }
func WithUpgradeTimeout(d time.Duration) Option {
	return func(c *Config) { c.UpgradeTimeout = d }
}
func WithMaxHTTPBufferSize(n int64) Option { return func(c *Config) { c.MaxHTTPBufferSize = n } }
func WithAllowUpgrades(allow bool) Option  { return func(c *Config) { c.AllowUpgrades = allow } }
func WithPath(p string) Option             { return func(c *Config) { c.Path = p } }
func WithAllowEIO3(allow bool) Option      { return func(c *Config) { c.AllowEIO3 = allow } }
func WithOutboundQueueSize(n int) Option   { return func(c *Config) { c.OutboundQueueSize = n } }
func WithMetrics(m *metrics.Collectors) Option { return func(c *Config) { c.Metrics = m } }
