package domain

import "time"

// Watching declares which slice of the market a node observes.
type Watching struct {
	Sports []string `json:"sports"`
	Books  []string `json:"books"`
}

// Node is a registered participant in the mesh. Reputation is an
// integer score clamped to [0,100]; new nodes start at 50.
type Node struct {
	ID               string          `json:"id"`
	Watching         Watching        `json:"watching"`
	Agents           map[string]bool `json:"agents,omitempty"`
	Reputation       int             `json:"reputation"`
	SignalsPublished int64           `json:"signalsPublished"`
	RegisteredAt     time.Time       `json:"registeredAt"`
	LastSeen         time.Time       `json:"lastSeen"`
}

// DefaultReputation is assigned at registration and assumed for
// publishers the registry has never seen.
const DefaultReputation = 50

// Outcome grades a resolved signal.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomePush      Outcome = "push"
	OutcomeCancelled Outcome = "cancelled"
)

// Valid reports whether o is a known outcome grade.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCorrect, OutcomeIncorrect, OutcomePush, OutcomeCancelled:
		return true
	}
	return false
}

// OutcomeReport records how a published signal resolved, used to adjust
// the publisher's reputation in proportion to its stated confidence.
type OutcomeReport struct {
	SignalID   string     `json:"signalId"`
	NodeID     string     `json:"nodeId"`
	Type       SignalType `json:"type"`
	Outcome    Outcome    `json:"outcome"`
	Confidence float64    `json:"confidence"`
	Delta      int        `json:"delta"`
	ReportedAt time.Time  `json:"reportedAt"`
}

// NetworkStats summarizes the live mesh: how many nodes are active,
// their average reputation, and the union of what they watch.
type NetworkStats struct {
	ActiveNodes   int       `json:"activeNodes"`
	AvgReputation float64   `json:"avgReputation"`
	Coverage      Watching  `json:"coverage"`
	GeneratedAt   time.Time `json:"generatedAt"`
}
