package domain

import (
	"fmt"
	"time"
)

// SignalType classifies what a node believes it has observed.
type SignalType string

const (
	SignalSteam   SignalType = "steam"
	SignalArb     SignalType = "arb"
	SignalDead    SignalType = "dead"
	SignalEV      SignalType = "ev"
	SignalNews    SignalType = "news"
	SignalPattern SignalType = "pattern"
)

// defaultTTLs maps each signal type to its lifetime when the publisher
// does not set one. Arbs go stale fastest, news lives longest.
var defaultTTLs = map[SignalType]time.Duration{
	SignalSteam:   60 * time.Second,
	SignalArb:     30 * time.Second,
	SignalDead:    300 * time.Second,
	SignalEV:      120 * time.Second,
	SignalNews:    600 * time.Second,
	SignalPattern: 300 * time.Second,
}

// DefaultTTL returns the standard lifetime for the type, or zero for an
// unknown type.
func (t SignalType) DefaultTTL() time.Duration {
	return defaultTTLs[t]
}

// Valid reports whether t is one of the known signal types.
func (t SignalType) Valid() bool {
	_, ok := defaultTTLs[t]
	return ok
}

// SignalSource identifies the publishing node and carries its
// reputation as of publish time, so consumers can weigh the signal
// without a registry lookup.
type SignalSource struct {
	NodeID     string `json:"nodeId"`
	Reputation int    `json:"reputation"`
}

// SignalPayload is the claim itself: which game, what was seen, and how
// confident the detector is (0-100).
type SignalPayload struct {
	GameID      string  `json:"gameId"`
	Sport       string  `json:"sport"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	TTLSeconds  int     `json:"ttl"`
}

// SignalEvidence holds the observations backing a signal. Fields are
// type-specific: steam sets the line delta, arb sets profit, dead sets
// RefID of the signal it kills.
type SignalEvidence struct {
	Books     []string  `json:"books,omitempty"`
	OldLine   float64   `json:"oldLine,omitempty"`
	NewLine   float64   `json:"newLine,omitempty"`
	Delta     float64   `json:"delta,omitempty"`
	Profit    float64   `json:"profit,omitempty"`
	RefID     string    `json:"refId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal is the unit of distribution: one node's time-bounded claim
// about one game, published to every subscribed peer.
type Signal struct {
	ID        string         `json:"id"`
	Type      SignalType     `json:"type"`
	Source    SignalSource   `json:"source"`
	Payload   SignalPayload  `json:"payload"`
	Evidence  SignalEvidence `json:"evidence"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// TTL returns the effective lifetime: the payload's if positive,
// otherwise the type default.
func (s Signal) TTL() time.Duration {
	if s.Payload.TTLSeconds > 0 {
		return time.Duration(s.Payload.TTLSeconds) * time.Second
	}
	return s.Type.DefaultTTL()
}

// Expired reports whether the signal is past its expiry at now.
func (s Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Validate checks the minimum a signal needs before it can be
// published: a known type, a source node, and a game reference.
func (s Signal) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, s.Type)
	}
	if s.Source.NodeID == "" {
		return fmt.Errorf("%w: missing source node", ErrInvalidSignal)
	}
	if s.Payload.GameID == "" {
		return fmt.Errorf("%w: missing game id", ErrInvalidSignal)
	}
	if s.Type == SignalDead && s.Evidence.RefID == "" {
		return fmt.Errorf("%w: dead signal without reference", ErrInvalidSignal)
	}
	return nil
}
