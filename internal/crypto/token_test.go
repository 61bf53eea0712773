package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// newTestVerifier derives a key from a fixed secret. The derivation is
// slow, so share one verifier across subtests.
func newTestVerifier(t *testing.T) *TierVerifier {
	t.Helper()
	v, err := NewTierVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewTierVerifier: %v", err)
	}
	return v
}

func TestMintVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	for _, tier := range []domain.Tier{domain.TierFree, domain.TierPro, domain.TierPremium} {
		token, err := v.Mint(tier, "node-77", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Mint(%s): %v", tier, err)
		}
		got, subject, err := v.Verify(token)
		if err != nil {
			t.Fatalf("Verify(%s): %v", tier, err)
		}
		if got != tier || subject != "node-77" {
			t.Errorf("Verify = (%s, %s), want (%s, node-77)", got, subject, tier)
		}
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Mint(domain.TierFree, "node-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	// Upgrade the tier field without re-signing.
	forged := strings.Replace(token, "free.", "premium.", 1)
	if _, _, err := v.Verify(forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("forged token error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Mint(domain.TierPro, "node-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	v.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, _, err = v.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token error = %v, want ErrTokenExpired", err)
	}
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Error("expired token error should unwrap to ErrUnauthorized")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := newTestVerifier(t)

	for _, token := range []string{"", "free", "free.sub", "free.sub.notanumber.sig", "x.y.z.w.v"} {
		if _, _, err := v.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Verify(%q) error = %v, want ErrUnauthorized", token, err)
		}
	}
}

func TestMintRejectsBadInput(t *testing.T) {
	v := newTestVerifier(t)

	if _, err := v.Mint(domain.Tier("vip"), "node-1", time.Now()); err == nil {
		t.Error("expected error for unknown tier")
	}
	if _, err := v.Mint(domain.TierPro, "dotted.subject", time.Now()); err == nil {
		t.Error("expected error for subject containing a dot")
	}
}

func TestNewTierVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTierVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
