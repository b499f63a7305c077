// Package syncutil provides the concurrency primitives the flow engine
// builds on: a panic-safe goroutine launcher, a worker pool, and an
// observable read-write mutex used by the metrics registry.
package syncutil

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowbridge/flowbridge/internal/obslog"
)

// MutexConfig controls the behavior of SmartRWMutex.
type MutexConfig struct {
	// Name identifies this mutex in logs.
	Name string

	// SlowThreshold logs a warning if a write lock is held longer than this.
	SlowThreshold time.Duration

	// DebugMode enables caller tracking and duration logging. Off by
	// default since it costs a runtime.Caller() per Lock().
	DebugMode bool
}

// SmartRWMutex is a sync.RWMutex with optional slow-hold observability.
type SmartRWMutex struct {
	mu       sync.RWMutex
	config   MutexConfig
	holder   atomic.Value
	lockedAt atomic.Int64
}

func NewSmartRWMutex(cfg MutexConfig) *SmartRWMutex {
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = 100 * time.Millisecond
	}
	return &SmartRWMutex{config: cfg}
}

func (m *SmartRWMutex) Lock() {
	m.mu.Lock()
	if !m.config.DebugMode {
		return
	}
	m.lockedAt.Store(time.Now().UnixMilli())
	if _, file, line, ok := runtime.Caller(1); ok {
		m.holder.Store(fmt.Sprintf("%s:%d", file, line))
	}
}

func (m *SmartRWMutex) Unlock() {
	if !m.config.DebugMode {
		m.mu.Unlock()
		return
	}
	start := m.lockedAt.Load()
	duration := time.Since(time.UnixMilli(start))
	holder := m.holder.Load()
	m.mu.Unlock()
	if duration > m.config.SlowThreshold {
		obslog.L().Warn("SmartRWMutex write held too long",
			"name", m.config.Name, "duration", duration, "caller", holder)
	}
}

func (m *SmartRWMutex) RLock()   { m.mu.RLock() }
func (m *SmartRWMutex) RUnlock() { m.mu.RUnlock() }
