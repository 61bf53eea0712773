// Package detect hosts the server-side detection agents. Each detector
// consumes odds snapshots and mesh signals on its own channel and proposes
// signal drafts; the engine publishes accepted drafts through the bus under
// the host node's identity.
package detect

import (
	"context"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Draft is a signal a detector wants published, plus any side records the
// host should persist. Detectors describe what they saw; node identity and
// routing belong to the engine.
type Draft struct {
	Type     domain.SignalType
	Payload  domain.SignalPayload
	Evidence domain.SignalEvidence

	// Movement, when set, is recorded to movement history alongside the
	// publish.
	Movement *domain.LineMovement
}

// Detector defines the contract for detection agents.
type Detector interface {
	Name() string
	Init(ctx context.Context) error
	OnOdds(ctx context.Context, odds domain.GameOdds) ([]Draft, error)
	OnSignal(ctx context.Context, sig domain.Signal) ([]Draft, error)
	Close() error
}

// Config holds detector configuration.
type Config struct {
	Name   string
	Params map[string]any
}

// floatParam reads a float64 parameter with a default.
func (c Config) floatParam(key string, def float64) float64 {
	if v, ok := c.Params[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// intParam reads an int parameter with a default. TOML decodes integers as
// int64, so both forms are accepted.
func (c Config) intParam(key string, def int) int {
	if v, ok := c.Params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}
