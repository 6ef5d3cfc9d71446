// Package storage provides the array layer the query engine runs against:
// open/close lifecycle, timestamp-windowed fragment visibility, and the
// on-disk fragment store.
package storage

import (
	"log/slog"
	"sync/atomic"

	"github.com/axisdb/axisdb/internal/tasks"
	"github.com/axisdb/axisdb/internal/tilecodec"
)

// Compression selects the fragment block compression algorithm.
type Compression = tilecodec.Compression

const (
	CompressionNone = tilecodec.CompressionNone
	CompressionLZ4  = tilecodec.CompressionLZ4
	CompressionZSTD = tilecodec.CompressionZSTD
)

// Stats counts storage-layer activity. All counters are safe for
// concurrent use.
type Stats struct {
	FragmentsWritten atomic.Uint64
	FragmentsLoaded  atomic.Uint64
	QueriesProcessed atomic.Uint64
}

// Context owns the shared resources of one engine instance: the compute
// pool, the logger, and the fragment codec configuration.
type Context struct {
	pool        *tasks.Pool
	logger      *slog.Logger
	compression Compression
	fsync       bool
	stats       Stats
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the structured logger. Nil selects a discard logger.
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPoolSize sets the compute pool size. Zero defaults to GOMAXPROCS.
func WithPoolSize(n int) ContextOption {
	return func(c *Context) {
		if n > 0 {
			c.pool.Close()
			c.pool = tasks.NewPool(n)
		}
	}
}

// WithCompression selects the fragment block compression.
func WithCompression(comp Compression) ContextOption {
	return func(c *Context) {
		c.compression = comp
	}
}

// WithFsync forces fragment files to be synced to stable storage on write.
func WithFsync(enabled bool) ContextOption {
	return func(c *Context) {
		c.fsync = enabled
	}
}

// NewContext creates a storage context.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		pool:        tasks.NewPool(0),
		logger:      slog.New(slog.DiscardHandler),
		compression: tilecodec.CompressionZSTD,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool returns the compute pool queries schedule parallel work on.
func (c *Context) Pool() *tasks.Pool { return c.pool }

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Stats returns the live counters.
func (c *Context) Stats() *Stats { return &c.stats }

// Close releases the compute pool. Idempotent.
func (c *Context) Close() { c.pool.Close() }
