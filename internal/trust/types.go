package trust

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VerificationTier is the ordered assurance level of an agent. The engine
// copies it through and never derives or upgrades it.
type VerificationTier uint8

const (
	TierUnverified VerificationTier = iota
	TierBasic
	TierVerified
	TierAudited
	TierEnterprise
)

var tierNames = [...]string{"unverified", "basic", "verified", "audited", "enterprise"}

// Valid reports whether t is one of the five defined tiers.
func (t VerificationTier) Valid() bool {
	return int(t) < len(tierNames)
}

func (t VerificationTier) String() string {
	if !t.Valid() {
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
	return tierNames[t]
}

// ParseVerificationTier accepts a tier name (case-insensitive) or its ordinal.
func ParseVerificationTier(s string) (VerificationTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name {
			return VerificationTier(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(tierNames) {
		return 0, fmt.Errorf("unknown verification tier %q", s)
	}
	return VerificationTier(n), nil
}

func (t VerificationTier) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid verification tier %d", uint8(t))
	}
	return []byte(strconv.Itoa(int(t))), nil
}

func (t *VerificationTier) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode verification tier: %w", err)
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("verification tier must be an integer, got %v", v)
		}
		s = strconv.Itoa(int(v))
	default:
		return fmt.Errorf("verification tier must be a number or name, got %s", string(data))
	}
	tier, err := ParseVerificationTier(s)
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// AgentPlatformData is the raw metric snapshot for one agent. Every field feeds
// exactly one sub-score formula.
type AgentPlatformData struct {
	AgentID      string `json:"agent_id"`
	DisplayName  string `json:"display_name"`
	ChainAddress string `json:"chain_address"`

	// platform activity
	DenMessages     int `json:"den_messages"`
	DMsSent         int `json:"dms_sent"`
	PromptResponses int `json:"prompt_responses"`

	// skill verification
	VerifiedSkills int `json:"verified_skills"`
	TotalSkills    int `json:"total_skills"`

	// endorsements, avg endorser trust is on the 0-1000 scale
	EndorsementCount int     `json:"endorsement_count"`
	AvgEndorserTrust float64 `json:"avg_endorser_trust"`

	// reviews, rating is 0-5
	ReviewCount     int     `json:"review_count"`
	AvgReviewRating float64 `json:"avg_review_rating"`

	// deployment, both 0-100
	UptimePercent          float64 `json:"uptime_percent"`
	ResponseQualityPercent float64 `json:"response_quality_percent"`

	// on-chain history
	WalletAgeDays    int `json:"wallet_age_days"`
	TransactionCount int `json:"transaction_count"`

	AuditPassed bool    `json:"audit_passed"`
	AuditScore  float64 `json:"audit_score"`

	AccountAgeDays   int              `json:"account_age_days"`
	VerificationTier VerificationTier `json:"verification_tier"`
	LastActivityAt   time.Time        `json:"last_activity_at"`
}

// ComponentScores holds the eight bounded sub-scores.
type ComponentScores struct {
	PlatformActivity   int `json:"platform_activity"`
	SkillVerifications int `json:"skill_verifications"`
	Endorsements       int `json:"endorsements"`
	Reviews            int `json:"reviews"`
	DeploymentMetrics  int `json:"deployment_metrics"`
	OnchainReputation  int `json:"onchain_reputation"`
	SecurityAudit      int `json:"security_audit"`
	AccountAge         int `json:"account_age"`
}

// Sum is the composite trust score.
func (c ComponentScores) Sum() int {
	return c.Activity() + c.SkillVerifications + c.OnchainReputation + c.SecurityAudit + c.AccountAge
}

// Activity is the subtotal of the four decaying components.
func (c ComponentScores) Activity() int {
	return c.PlatformActivity + c.Endorsements + c.Reviews + c.DeploymentMetrics
}

// TrustAttestation is an issued score. Treat it as a value: an update is a new
// attestation, never a mutation of an existing one.
type TrustAttestation struct {
	AgentID      string `json:"agent_id"`
	DisplayName  string `json:"display_name"`
	ChainAddress string `json:"chain_address"`

	Components       ComponentScores  `json:"components"`
	TrustScore       int              `json:"trust_score"`
	VerificationTier VerificationTier `json:"verification_tier"`

	IssuedAt         time.Time `json:"issued_at"`
	Issuer           string    `json:"issuer"`
	Version          int       `json:"version"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	DecayRatePercent float64   `json:"decay_rate_percent"`
}

// ScoreSnapshot is the query-time view of an attestation.
type ScoreSnapshot struct {
	CurrentScore int `json:"current_score"`
	DecayApplied int `json:"decay_applied"`
}
