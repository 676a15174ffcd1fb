// Package telemetry provides the structured, tagged log emission
// requires: a process-wide zap.Logger for structured fields, plus the
// tag-prefixed human lines ([DISCOVERY], [CACHE], [GATE], [HEAL], [RESULT],
// [PROFILE], [READINESS], [CACHE][DRIFT]) shells grep for. A
// category-tagged logger built on zap, collapsed into one sink instead of per-category
// files since this core has no TUI to keep quiet for.
package telemetry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Shim is the logging facade every subsystem takes a reference to.
type Shim struct {
	mu     sync.Mutex
	logger *zap.Logger
}

var (
	defaultShim *Shim
	once        sync.Once
)

// New builds a Shim. verbose=true sets debug level, matching the
// --verbose flag behavior wired in the CLI's PersistentPreRunE.
func New(verbose bool) (*Shim, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Shim{logger: logger}, nil
}

// Default returns a process-wide Shim, building a quiet one on first use.
// Callers that care about verbosity should call New directly and thread
// the result through instead of relying on this.
func Default() *Shim {
	once.Do(func() {
		s, err := New(false)
		if err != nil {
			s = &Shim{logger: zap.NewNop()}
		}
		defaultShim = s
	})
	return defaultShim
}

// Sync flushes the underlying zap logger. Call on every exit path.
func (s *Shim) Sync() {
	if s == nil || s.logger == nil {
		return
	}
	_ = s.logger.Sync()
}

// Raw exposes the underlying *zap.Logger for components that want
// structured fields beyond the tag-prefixed helpers below.
func (s *Shim) Raw() *zap.Logger {
	if s == nil || s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Shim) line(format string, args ...interface{}) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info(fmt.Sprintf(format, args...))
}

// Profile emits "[PROFILE] detected=... url=...".
func (s *Shim) Profile(detected, url string) {
	s.line("[PROFILE] detected=%s url=%s", detected, url)
}

// Discovery emits "[DISCOVERY] tier=N strategy=... selector=... stable=...".
func (s *Shim) Discovery(tier int, strategy, selector string, stable bool) {
	s.line("[DISCOVERY] tier=%d strategy=%s selector=%s stable=%t", tier, strategy, selector, stable)
}

// CacheEvent emits "[CACHE] HIT|MISS|SAVED|SKIPPED source=hot|warm element=... selector=...".
func (s *Shim) CacheEvent(outcome, source, element, selector string) {
	s.line("[CACHE] %s source=%s element=%s selector=%s", outcome, source, element, selector)
}

// CacheDrift emits "[CACHE][DRIFT] key=... drift=P% threshold=T% decision=reuse|invalidate".
func (s *Shim) CacheDrift(key string, driftPct, thresholdPct float64, decision string) {
	s.line("[CACHE][DRIFT] key=%s drift=%.1f%% threshold=%.1f%% decision=%s", key, driftPct, thresholdPct, decision)
}

// Readiness emits "[READINESS] stage=1|2|3 status=... info=...".
func (s *Shim) Readiness(stage int, status, info string) {
	s.line("[READINESS] stage=%d status=%s info=%s", stage, status, info)
}

// Gate emits "[GATE] unique=... visible=... enabled=... stable=... scoped=...".
func (s *Shim) Gate(unique, visible, enabled, stable, scoped bool) {
	s.line("[GATE] unique=%t visible=%t enabled=%t stable=%t scoped=%t", unique, visible, enabled, stable, scoped)
}

// Heal emits "[HEAL] round=N phase=reveal|reprobe|stabilize outcome=...".
func (s *Shim) Heal(round int, phase, outcome string) {
	s.line("[HEAL] round=%d phase=%s outcome=%s", round, phase, outcome)
}

// Result emits "[RESULT] status=PASS|FAIL|BLOCKED|PARTIAL steps=... heals=...".
func (s *Shim) Result(status string, steps, heals int) {
	s.line("[RESULT] status=%s steps=%d heals=%d", status, steps, heals)
}

// Warn logs a non-fatal telemetry/component error (non-fatal, logged).
func (s *Shim) Warn(context string, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Warn(context, zap.Error(err))
}
