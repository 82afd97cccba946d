package trust

import (
	"math"
	"time"
)

// ElapsedMonths converts now-last into fractional months of DaysPerMonth days.
func (c Config) ElapsedMonths(last, now time.Time) float64 {
	return now.Sub(last).Hours() / 24 / c.Decay.DaysPerMonth
}

// DecayFactor is (1-rate)^months. It is exactly 1 when no time has elapsed or
// the last activity lies in the future, so decay never raises a score.
func (c Config) DecayFactor(last, now time.Time) float64 {
	return decayFactor(c.Decay.MonthlyRate, c.ElapsedMonths(last, now))
}

func decayFactor(rate, months float64) float64 {
	if months <= 0 {
		return 1
	}
	return math.Pow(1-rate, months)
}

// DecayScore discounts a single undecayed sub-score. Used at issuance, once
// per activity component.
func (c Config) DecayScore(score int, last, now time.Time) int {
	factor := c.DecayFactor(last, now)
	if factor == 1 {
		return score
	}
	return int(math.Round(float64(score) * factor))
}

// DecayComponents decays the four activity components and leaves skill
// verification, on-chain reputation, security audit and account age alone.
func (c Config) DecayComponents(s ComponentScores, last, now time.Time) ComponentScores {
	s.PlatformActivity = c.DecayScore(s.PlatformActivity, last, now)
	s.Endorsements = c.DecayScore(s.Endorsements, last, now)
	s.Reviews = c.DecayScore(s.Reviews, last, now)
	s.DeploymentMetrics = c.DecayScore(s.DeploymentMetrics, last, now)
	return s
}

// CurrentScore re-derives a decayed score from an issued attestation without
// the raw metrics. The four stored activity sub-scores are pooled and decayed
// with one factor, rounded once; the remainder of the trust score is kept.
// This is deliberately not the per-component path DecayComponents takes, and
// the two can differ by rounding.
//
// The rate is the one stamped on att, so an attestation keeps decaying at
// the rate it advertised after the weight table changes. Attestations without
// a usable stamp fall back to the configured rate.
func (c Config) CurrentScore(att TrustAttestation, now time.Time) ScoreSnapshot {
	activity := att.Components.Activity()
	nonActivity := att.TrustScore - activity

	rate := c.Decay.MonthlyRate
	if p := att.DecayRatePercent; p > 0 && p < 100 {
		rate = p / 100
	}
	factor := decayFactor(rate, c.ElapsedMonths(att.LastActivityAt, now))
	decayedActivity := int(math.Round(float64(activity) * factor))

	current := nonActivity + decayedActivity
	return ScoreSnapshot{
		CurrentScore: current,
		DecayApplied: att.TrustScore - current,
	}
}
