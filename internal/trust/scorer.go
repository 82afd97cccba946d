package trust

import "math"

// ScoreComponents maps raw metrics to the eight undecayed sub-scores.
//
// Each sub-score is a sum of "ratio x weight" terms, rounded half away from
// zero, then clamped to [0, cap]. Inner saturating terms are capped at 1 as
// well, so a miscalibrated weight can never push a sub-score past its cap.
func ScoreComponents(cfg Config, d AgentPlatformData) ComponentScores {
	return ComponentScores{
		PlatformActivity:   PlatformActivityScore(cfg, d),
		SkillVerifications: SkillVerificationScore(cfg, d),
		Endorsements:       EndorsementScore(cfg, d),
		Reviews:            ReviewScore(cfg, d),
		DeploymentMetrics:  DeploymentScore(cfg, d),
		OnchainReputation:  OnchainScore(cfg, d),
		SecurityAudit:      SecurityAuditScore(cfg, d),
		AccountAge:         AccountAgeScore(cfg, d),
	}
}

// PlatformActivityScore rewards den messages, DMs and prompt responses.
func PlatformActivityScore(cfg Config, d AgentPlatformData) int {
	w := cfg.PlatformActivity
	raw := saturating(float64(d.DenMessages), w.Messages) +
		saturating(float64(d.DMsSent), w.DMs) +
		saturating(float64(d.PromptResponses), w.PromptResponses)
	return bounded(raw, w.Cap)
}

// SkillVerificationScore is zero when the agent lists no skills.
func SkillVerificationScore(cfg Config, d AgentPlatformData) int {
	if d.TotalSkills == 0 {
		return 0
	}
	w := cfg.SkillVerifications
	total := math.Max(float64(d.TotalSkills), 1)
	raw := float64(d.VerifiedSkills)/total*w.RatioWeight +
		saturating(float64(d.VerifiedSkills), w.Verified)
	return bounded(raw, w.Cap)
}

func EndorsementScore(cfg Config, d AgentPlatformData) int {
	w := cfg.Endorsements
	raw := saturating(float64(d.EndorsementCount), w.Count) +
		linear(d.AvgEndorserTrust, w.EndorserTrust)
	return bounded(raw, w.Cap)
}

func ReviewScore(cfg Config, d AgentPlatformData) int {
	w := cfg.Reviews
	raw := saturating(float64(d.ReviewCount), w.Count) +
		linear(d.AvgReviewRating, w.Rating)
	return bounded(raw, w.Cap)
}

func DeploymentScore(cfg Config, d AgentPlatformData) int {
	w := cfg.DeploymentMetrics
	raw := linear(d.UptimePercent, w.Uptime) +
		linear(d.ResponseQualityPercent, w.Quality)
	return bounded(raw, w.Cap)
}

func OnchainScore(cfg Config, d AgentPlatformData) int {
	w := cfg.OnchainReputation
	raw := saturating(float64(d.WalletAgeDays), w.WalletAge) +
		saturating(float64(d.TransactionCount), w.Transactions)
	return bounded(raw, w.Cap)
}

// SecurityAuditScore passes the audit score through, but only for a passed audit.
func SecurityAuditScore(cfg Config, d AgentPlatformData) int {
	if !d.AuditPassed {
		return 0
	}
	return bounded(d.AuditScore, cfg.SecurityAudit.Cap)
}

func AccountAgeScore(cfg Config, d AgentPlatformData) int {
	w := cfg.AccountAge
	return bounded(saturating(float64(d.AccountAgeDays), w.Age), w.Cap)
}

func saturating(value float64, t Term) float64 {
	return math.Min(value/t.Target, 1) * t.Weight
}

func linear(value float64, t Term) float64 {
	return value / t.Target * t.Weight
}

// bounded rounds half away from zero and clamps to [0, limit]. Limits are
// integers, so clamping after rounding equals rounding after clamping.
func bounded(raw float64, limit int) int {
	r := math.Round(raw)
	switch {
	case math.IsNaN(r) || r <= 0:
		return 0
	case r >= float64(limit):
		return limit
	default:
		return int(r)
	}
}
