package trust

import (
	"math"
	"testing"
	"time"
)

var refNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func monthsAgo(m float64) time.Time {
	return refNow.Add(-time.Duration(m * 30 * 24 * float64(time.Hour)))
}

func TestDecayFactor(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		last time.Time
		want float64
	}{
		{"activity right now", refNow, 1},
		{"activity in the future", refNow.Add(72 * time.Hour), 1},
		{"one month", monthsAgo(1), 0.95},
		{"two months", monthsAgo(2), 0.9025},
		{"half a month is fractional", monthsAgo(0.5), math.Sqrt(0.95)},
		{"a year", monthsAgo(12), math.Pow(0.95, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.DecayFactor(tt.last, refNow)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DecayFactor = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestDecayScore(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name  string
		score int
		last  time.Time
		want  int
	}{
		{"no elapsed time", 150, refNow, 150},
		{"future activity never raises", 150, refNow.Add(time.Hour), 150},
		{"one month", 100, monthsAgo(1), 95},
		{"two months", 150, monthsAgo(2), 135}, // 135.375
		{"zero stays zero", 0, monthsAgo(24), 0},
		{"long idle decays to nothing", 150, monthsAgo(600), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.DecayScore(tt.score, tt.last, refNow)
			if got != tt.want {
				t.Errorf("DecayScore(%d) = %d, want %d", tt.score, got, tt.want)
			}
		})
	}
}

func TestDecayScore_MonotonicInElapsedTime(t *testing.T) {
	cfg := DefaultConfig()
	prev := cfg.DecayScore(150, monthsAgo(0.1), refNow)
	for m := 0.2; m <= 48; m += 0.1 {
		got := cfg.DecayScore(150, monthsAgo(m), refNow)
		if got > prev {
			t.Fatalf("decay increased between %.1f and %.1f months: %d -> %d", m-0.1, m, prev, got)
		}
		prev = got
	}
}

func TestDecayComponents_OnlyActivityDecays(t *testing.T) {
	cfg := DefaultConfig()
	in := ComponentScores{
		PlatformActivity:   150,
		SkillVerifications: 130,
		Endorsements:       98,
		Reviews:            88,
		DeploymentMetrics:  142,
		OnchainReputation:  47,
		SecurityAudit:      85,
		AccountAge:         25,
	}

	got := cfg.DecayComponents(in, monthsAgo(2), refNow)
	want := ComponentScores{
		PlatformActivity:   135,
		SkillVerifications: 130,
		Endorsements:       88,
		Reviews:            79,
		DeploymentMetrics:  128,
		OnchainReputation:  47,
		SecurityAudit:      85,
		AccountAge:         25,
	}
	if got != want {
		t.Errorf("DecayComponents = %+v, want %+v", got, want)
	}
}

func TestCurrentScore(t *testing.T) {
	cfg := DefaultConfig()
	att := TrustAttestation{
		Components: ComponentScores{
			PlatformActivity:   50,
			Endorsements:       50,
			Reviews:            50,
			DeploymentMetrics:  50,
			SkillVerifications: 150,
			OnchainReputation:  100,
			SecurityAudit:      50,
		},
		TrustScore:     500,
		LastActivityAt: monthsAgo(2),
	}

	got := cfg.CurrentScore(att, refNow)
	if got.CurrentScore != 481 {
		t.Errorf("expected current score 481, got %d", got.CurrentScore)
	}
	if got.DecayApplied != 19 {
		t.Errorf("expected decay applied 19, got %d", got.DecayApplied)
	}
}

func TestCurrentScore_NoElapsedTime(t *testing.T) {
	cfg := DefaultConfig()
	att := TrustAttestation{
		Components:     ComponentScores{PlatformActivity: 77, Reviews: 33, AccountAge: 50},
		TrustScore:     160,
		LastActivityAt: refNow,
	}

	for _, now := range []time.Time{refNow, refNow.Add(-48 * time.Hour)} {
		got := cfg.CurrentScore(att, now)
		if got.CurrentScore != 160 || got.DecayApplied != 0 {
			t.Errorf("at %s expected 160/0, got %d/%d", now, got.CurrentScore, got.DecayApplied)
		}
	}
}

func TestCurrentScore_PoolsBeforeRounding(t *testing.T) {
	// Per-component decay of 11 at 5% gives 10 each (40 total); pooling the
	// 44 subtotal gives round(41.8) = 42. The query path must keep pooling.
	cfg := DefaultConfig()
	comps := ComponentScores{PlatformActivity: 11, Endorsements: 11, Reviews: 11, DeploymentMetrics: 11}
	att := TrustAttestation{Components: comps, TrustScore: 44, LastActivityAt: monthsAgo(1)}

	pooled := cfg.CurrentScore(att, refNow)
	if pooled.CurrentScore != 42 || pooled.DecayApplied != 2 {
		t.Errorf("expected pooled 42/2, got %d/%d", pooled.CurrentScore, pooled.DecayApplied)
	}

	perComponent := cfg.DecayComponents(comps, att.LastActivityAt, refNow).Sum()
	if perComponent != 40 {
		t.Errorf("expected per-component total 40, got %d", perComponent)
	}
}

func TestCurrentScore_UsesStampedRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decay.MonthlyRate = 0.5

	att := TrustAttestation{
		Components:       ComponentScores{PlatformActivity: 100, AccountAge: 50},
		TrustScore:       150,
		LastActivityAt:   monthsAgo(1),
		DecayRatePercent: 10,
	}

	got := cfg.CurrentScore(att, refNow)
	if got.CurrentScore != 140 || got.DecayApplied != 10 {
		t.Errorf("expected stamped 10%% rate to give 140/10, got %d/%d", got.CurrentScore, got.DecayApplied)
	}

	att.DecayRatePercent = 0
	got = cfg.CurrentScore(att, refNow)
	if got.CurrentScore != 100 || got.DecayApplied != 50 {
		t.Errorf("expected configured 50%% rate without a stamp, got %d/%d", got.CurrentScore, got.DecayApplied)
	}
}
