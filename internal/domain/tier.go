package domain

// Tier controls delivery privileges on the fan-out gateway. Free
// connections receive arbitrage opportunities on a delay; pro and
// premium receive them immediately.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierPremium:
		return true
	}
	return false
}

// Immediate reports whether the tier receives arbitrage opportunities
// without the free-tier deferral window.
func (t Tier) Immediate() bool {
	return t == TierPro || t == TierPremium
}
