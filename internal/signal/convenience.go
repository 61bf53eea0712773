package signal

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// SteamContent builds the payload and evidence for a steam signal from a
// line movement. Confidence scales with the size of the move and how many
// books confirmed it, capped at 100.
func SteamContent(mv domain.LineMovement) (domain.SignalPayload, domain.SignalEvidence) {
	confidence := math.Min(100, math.Abs(mv.Delta)*10+float64(mv.BookCount)*10)
	payload := domain.SignalPayload{
		GameID: mv.GameID,
		Sport:  mv.Sport,
		Description: fmt.Sprintf("%s %s line moved %+.1f (%.1f to %.1f) across %d books",
			mv.Bookmaker, mv.Market, mv.Delta, mv.OldLine, mv.NewLine, mv.BookCount),
		Confidence: confidence,
	}
	evidence := domain.SignalEvidence{
		Books:     []string{mv.Bookmaker},
		OldLine:   mv.OldLine,
		NewLine:   mv.NewLine,
		Delta:     mv.Delta,
		Timestamp: mv.RecordedAt,
	}
	return payload, evidence
}

// PublishSteam packages a line movement as a steam signal.
func (b *Bus) PublishSteam(ctx context.Context, nodeID string, mv domain.LineMovement) (domain.Signal, error) {
	payload, evidence := SteamContent(mv)
	return b.Publish(ctx, domain.SignalSteam, nodeID, payload, evidence)
}

// ArbContent builds the payload and evidence for an arb signal from a
// detected opportunity. Confidence is proportional to the locked-in profit,
// capped at 100.
func ArbContent(opp domain.ArbitrageOpportunity) (domain.SignalPayload, domain.SignalEvidence) {
	confidence := math.Min(100, opp.ProfitPct*20)
	payload := domain.SignalPayload{
		GameID: opp.GameID,
		Sport:  opp.Sport,
		Description: fmt.Sprintf("%.2f%% %s arbitrage on %s: %s at %s / %s at %s",
			opp.ProfitPct, opp.Market, opp.Game,
			opp.Legs[0].Outcome, opp.Legs[0].Bookmaker,
			opp.Legs[1].Outcome, opp.Legs[1].Bookmaker),
		Confidence: confidence,
	}
	evidence := domain.SignalEvidence{
		Books:     []string{opp.Legs[0].Bookmaker, opp.Legs[1].Bookmaker},
		Profit:    opp.ProfitPct,
		Timestamp: opp.DetectedAt,
	}
	return payload, evidence
}

// PublishArb packages a detected opportunity as an arb signal.
func (b *Bus) PublishArb(ctx context.Context, nodeID string, opp domain.ArbitrageOpportunity) (domain.Signal, error) {
	payload, evidence := ArbContent(opp)
	return b.Publish(ctx, domain.SignalArb, nodeID, payload, evidence)
}

// PublishDead retracts an earlier signal. The referenced id must still
// resolve in the store; a reference that has already expired fails with
// ErrNotFound.
func (b *Bus) PublishDead(ctx context.Context, nodeID, refID, reason string) (domain.Signal, error) {
	orig, err := b.store.Get(ctx, refID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Signal{}, fmt.Errorf("dead signal reference %s: %w", refID, domain.ErrNotFound)
		}
		return domain.Signal{}, fmt.Errorf("dead signal reference %s: %w", refID, err)
	}

	if reason == "" {
		reason = "no longer valid"
	}
	payload := domain.SignalPayload{
		GameID:      orig.Payload.GameID,
		Sport:       orig.Payload.Sport,
		Description: fmt.Sprintf("%s signal %s is dead: %s", orig.Type, orig.ID, reason),
		Confidence:  100,
	}
	evidence := domain.SignalEvidence{
		Books: orig.Evidence.Books,
		RefID: orig.ID,
	}
	return b.Publish(ctx, domain.SignalDead, nodeID, payload, evidence)
}
