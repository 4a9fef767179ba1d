// Package settlement computes the approved payout for a verified claim from
// the claim snapshot and the policy terms. The computation is pure: it reads
// no stores and performs no I/O, so the engine can call it inside a
// transaction without holding locks across anything slow.
package settlement

import (
	"swiftclaim/internal/claim"
	"swiftclaim/internal/policy"
	id "swiftclaim/pkg/domain"
)

// ComputePayout returns the amount the insurer pays out for the claim under
// the policy's terms. All arithmetic is on smallest-unit integers; divisions
// truncate, so the payout never rounds in the claimant's favor.
func ComputePayout(c *claim.Claim, p *policy.Policy) id.Amount {
	switch c.Type {
	case id.ClaimTypeHealth:
		return healthPayout(c, p)
	case id.ClaimTypeTravel:
		return travelPayout(c, p)
	default:
		return 0
	}
}

// healthPayout applies the copay first, then the treatment sub-limit, then the
// per-claim ceiling. Order matters: the sub-limit bounds the insurer's share,
// not the billed amount.
func healthPayout(c *claim.Claim, p *policy.Policy) id.Amount {
	payout := c.DeclaredAmount * id.Amount(100-p.CopayPercent) / 100
	payout = payout.ClampTo(p.Health.SubLimitFor(c.Treatment))
	return payout.ClampTo(p.PerClaimCeiling)
}

// travelPayout pays the declared amount up to the per-claim ceiling. When the
// policy defines a delay schedule and the claim is a delay claim, the payout
// is instead the flat schedule amount: one bracket payment per full bracket of
// recorded delay, still capped by the ceiling.
func travelPayout(c *claim.Claim, p *policy.Policy) id.Amount {
	t := p.Travel
	if c.Kind == id.TravelDelay && t != nil && t.PayoutPerBracket > 0 && t.DelayBracketMinutes > 0 {
		brackets := id.Amount(c.DelayMinutes / t.DelayBracketMinutes)
		return (t.PayoutPerBracket * brackets).ClampTo(p.PerClaimCeiling)
	}
	return c.DeclaredAmount.ClampTo(p.PerClaimCeiling)
}
