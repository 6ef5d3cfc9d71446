package axisdb

import (
	"github.com/axisdb/axisdb/schema"
	"github.com/axisdb/axisdb/storage"
)

// Engine is the entry point of the storage engine. It owns the shared
// storage context: the compute pool, the logger, and the fragment codec.
type Engine struct {
	ctx     *storage.Context
	logger  *Logger
	metrics MetricsCollector
}

// Option configures the Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger      *Logger
	metrics     MetricsCollector
	poolSize    int
	compression storage.Compression
	fsync       bool
}

// WithLogger sets the logger for the engine.
func WithLogger(l *Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector for the engine.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPoolSize sets the compute pool size. Zero defaults to GOMAXPROCS.
func WithPoolSize(n int) Option {
	return func(c *engineConfig) {
		c.poolSize = n
	}
}

// WithCompression selects the fragment block compression.
func WithCompression(comp storage.Compression) Option {
	return func(c *engineConfig) {
		c.compression = comp
	}
}

// WithFsync forces fragment files to be synced to stable storage on write.
func WithFsync(enabled bool) Option {
	return func(c *engineConfig) {
		c.fsync = enabled
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	cfg := engineConfig{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		compression: storage.CompressionZSTD,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := storage.NewContext(
		storage.WithLogger(cfg.logger.Logger),
		storage.WithPoolSize(cfg.poolSize),
		storage.WithCompression(cfg.compression),
		storage.WithFsync(cfg.fsync),
	)
	return &Engine{ctx: ctx, logger: cfg.logger, metrics: cfg.metrics}
}

// Context returns the underlying storage context.
func (e *Engine) Context() *storage.Context { return e.ctx }

// Stats returns the storage-layer counters.
func (e *Engine) Stats() *storage.Stats { return e.ctx.Stats() }

// Close releases the compute pool. Idempotent.
func (e *Engine) Close() { e.ctx.Close() }

// CreateArray materializes a new array at uri, including the sibling arrays
// of every declared dimension label.
func (e *Engine) CreateArray(uri string, s *schema.ArraySchema) error {
	return translateError(storage.Create(e.ctx, uri, s))
}

// OpenOption configures an array open.
type OpenOption func(*openConfig)

type openConfig struct {
	tsStart    uint64
	tsEnd      uint64
	encryption storage.EncryptionType
	key        []byte
}

// WithTimestamps restricts the open to fragments written inside
// [start, end]. A zero end means the current time.
func WithTimestamps(start, end uint64) OpenOption {
	return func(c *openConfig) {
		c.tsStart = start
		c.tsEnd = end
	}
}

// WithEncryption sets the at-rest encryption of the array.
func WithEncryption(enc storage.EncryptionType, key []byte) OpenOption {
	return func(c *openConfig) {
		c.encryption = enc
		c.key = key
	}
}

// Array is an open array handle queries run against.
type Array struct {
	engine *Engine
	inner  *storage.Array
}

// OpenArray opens the array at uri under the given query type.
func (e *Engine) OpenArray(uri string, qt storage.QueryType, opts ...OpenOption) (*Array, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	arr := storage.NewArray(e.ctx, uri)
	if err := arr.Open(qt, cfg.tsStart, cfg.tsEnd, cfg.encryption, cfg.key); err != nil {
		return nil, translateError(err)
	}
	return &Array{engine: e, inner: arr}, nil
}

// URI returns the array location.
func (a *Array) URI() string { return a.inner.URI() }

// Schema returns the array schema.
func (a *Array) Schema() (*schema.ArraySchema, error) {
	return a.inner.Schema()
}

// IsEmpty reports whether the array holds no visible fragments.
func (a *Array) IsEmpty() (bool, error) {
	return a.inner.IsEmpty()
}

// Storage returns the underlying storage array.
func (a *Array) Storage() *storage.Array { return a.inner }

// Close closes the array. Idempotent.
func (a *Array) Close() { a.inner.Close() }
