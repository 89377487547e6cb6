// Package timeouts provides centralized timeout values for I/O performed
// during a synchronization run.
//
// Guidelines for choosing a timeout:
//   - Connect: dialing the directory, pinging the LMS database or Mongo
//   - Query: one directory search (all pages) or one store lookup
//   - Partition: a whole partition pass, including its transaction
//   - Retention: the full retention pass
//   - Backup: one course export (external command plus upload)
package timeouts

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultConnect   = 10 * time.Second
	DefaultQuery     = 2 * time.Minute
	DefaultPartition = 15 * time.Minute
	DefaultRetention = time.Hour
	DefaultBackup    = 20 * time.Minute
)

var mu sync.RWMutex

var (
	connect   = DefaultConnect
	query     = DefaultQuery
	partition = DefaultPartition
	retention = DefaultRetention
	backup    = DefaultBackup
)

// Connect returns the timeout for establishing connections.
func Connect() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return connect
}

// Query returns the timeout for one directory search or store lookup.
func Query() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return query
}

// Partition returns the timeout for one partition pass.
func Partition() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return partition
}

// Retention returns the timeout for the full retention pass.
func Retention() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return retention
}

// Backup returns the timeout for one course export.
func Backup() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return backup
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Connect   time.Duration
	Query     time.Duration
	Partition time.Duration
	Retention time.Duration
	Backup    time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values. Call it during startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Connect > 0 {
		connect = cfg.Connect
	}
	if cfg.Query > 0 {
		query = cfg.Query
	}
	if cfg.Partition > 0 {
		partition = cfg.Partition
	}
	if cfg.Retention > 0 {
		retention = cfg.Retention
	}
	if cfg.Backup > 0 {
		backup = cfg.Backup
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	connect = DefaultConnect
	query = DefaultQuery
	partition = DefaultPartition
	retention = DefaultRetention
	backup = DefaultBackup
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Connect:   connect,
		Query:     query,
		Partition: partition,
		Retention: retention,
		Backup:    backup,
	}
}

// Log writes the effective timeouts at startup.
func Log(logger *zap.Logger) {
	c := Current()
	logger.Info("timeouts configured",
		zap.Duration("connect", c.Connect),
		zap.Duration("query", c.Query),
		zap.Duration("partition", c.Partition),
		zap.Duration("retention", c.Retention),
		zap.Duration("backup", c.Backup))
}
