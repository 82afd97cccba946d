package trust

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultIssuer identifies attestations produced by this service.
const DefaultIssuer = "vouch"

// MaxTrustScore is the ceiling of the composite score.
const MaxTrustScore = 1000

// ErrInvalidConfig is returned by Validate and LoadConfig.
var ErrInvalidConfig = errors.New("invalid trust config")

// Term is one "ratio x weight" contribution. Saturating terms cap value/Target
// at 1 before scaling; linear terms use Target only as the scale.
type Term struct {
	Target float64 `yaml:"target"`
	Weight float64 `yaml:"weight"`
}

type PlatformActivityWeights struct {
	Messages        Term `yaml:"messages"`
	DMs             Term `yaml:"dms"`
	PromptResponses Term `yaml:"prompt_responses"`
	Cap             int  `yaml:"cap"`
}

type SkillWeights struct {
	RatioWeight float64 `yaml:"ratio_weight"`
	Verified    Term    `yaml:"verified"`
	Cap         int     `yaml:"cap"`
}

type EndorsementWeights struct {
	Count         Term `yaml:"count"`
	EndorserTrust Term `yaml:"endorser_trust"`
	Cap           int  `yaml:"cap"`
}

type ReviewWeights struct {
	Count  Term `yaml:"count"`
	Rating Term `yaml:"rating"`
	Cap    int  `yaml:"cap"`
}

type DeploymentWeights struct {
	Uptime  Term `yaml:"uptime"`
	Quality Term `yaml:"quality"`
	Cap     int  `yaml:"cap"`
}

type OnchainWeights struct {
	WalletAge    Term `yaml:"wallet_age"`
	Transactions Term `yaml:"transactions"`
	Cap          int  `yaml:"cap"`
}

type AuditWeights struct {
	Cap int `yaml:"cap"`
}

type AccountAgeWeights struct {
	Age Term `yaml:"age"`
	Cap int  `yaml:"cap"`
}

// DecayConfig controls staleness discounting of the activity components.
type DecayConfig struct {
	// MonthlyRate is the fraction lost per elapsed month (0.05 = 5%).
	MonthlyRate float64 `yaml:"monthly_rate"`
	// DaysPerMonth is the month length used to convert elapsed time.
	DaysPerMonth float64 `yaml:"days_per_month"`
}

// Config is the weight table the engine scores against. It holds no
// references, so every copy is independent.
type Config struct {
	Issuer string `yaml:"issuer"`

	PlatformActivity   PlatformActivityWeights `yaml:"platform_activity"`
	SkillVerifications SkillWeights            `yaml:"skill_verifications"`
	Endorsements       EndorsementWeights      `yaml:"endorsements"`
	Reviews            ReviewWeights           `yaml:"reviews"`
	DeploymentMetrics  DeploymentWeights       `yaml:"deployment_metrics"`
	OnchainReputation  OnchainWeights          `yaml:"onchain_reputation"`
	SecurityAudit      AuditWeights            `yaml:"security_audit"`
	AccountAge         AccountAgeWeights       `yaml:"account_age"`

	Decay DecayConfig `yaml:"decay"`
}

// DefaultConfig returns the production weight table.
func DefaultConfig() Config {
	return Config{
		Issuer: DefaultIssuer,
		PlatformActivity: PlatformActivityWeights{
			Messages:        Term{Target: 100, Weight: 60},
			DMs:             Term{Target: 50, Weight: 40},
			PromptResponses: Term{Target: 10, Weight: 50},
			Cap:             150,
		},
		SkillVerifications: SkillWeights{
			RatioWeight: 100,
			Verified:    Term{Target: 10, Weight: 50},
			Cap:         150,
		},
		Endorsements: EndorsementWeights{
			Count:         Term{Target: 20, Weight: 75},
			EndorserTrust: Term{Target: 1000, Weight: 75},
			Cap:           150,
		},
		Reviews: ReviewWeights{
			Count:  Term{Target: 15, Weight: 75},
			Rating: Term{Target: 5, Weight: 75},
			Cap:    150,
		},
		DeploymentMetrics: DeploymentWeights{
			Uptime:  Term{Target: 100, Weight: 75},
			Quality: Term{Target: 100, Weight: 75},
			Cap:     150,
		},
		OnchainReputation: OnchainWeights{
			WalletAge:    Term{Target: 365, Weight: 50},
			Transactions: Term{Target: 100, Weight: 50},
			Cap:          100,
		},
		SecurityAudit: AuditWeights{Cap: 100},
		AccountAge: AccountAgeWeights{
			Age: Term{Target: 180, Weight: 50},
			Cap: 50,
		},
		Decay: DecayConfig{
			MonthlyRate:  0.05,
			DaysPerMonth: 30,
		},
	}
}

// LoadConfig overlays the YAML file at path onto DefaultConfig. Keys missing
// from the file keep their default. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read weights file: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse weights file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every term is usable and that the caps keep the
// composite inside [0, MaxTrustScore].
func (c Config) Validate() error {
	var problems []string

	terms := map[string]Term{
		"platform_activity.messages":         c.PlatformActivity.Messages,
		"platform_activity.dms":              c.PlatformActivity.DMs,
		"platform_activity.prompt_responses": c.PlatformActivity.PromptResponses,
		"skill_verifications.verified":       c.SkillVerifications.Verified,
		"endorsements.count":                 c.Endorsements.Count,
		"endorsements.endorser_trust":        c.Endorsements.EndorserTrust,
		"reviews.count":                      c.Reviews.Count,
		"reviews.rating":                     c.Reviews.Rating,
		"deployment_metrics.uptime":          c.DeploymentMetrics.Uptime,
		"deployment_metrics.quality":         c.DeploymentMetrics.Quality,
		"onchain_reputation.wallet_age":      c.OnchainReputation.WalletAge,
		"onchain_reputation.transactions":    c.OnchainReputation.Transactions,
		"account_age.age":                    c.AccountAge.Age,
	}
	for name, t := range terms {
		if t.Target <= 0 {
			problems = append(problems, name+".target must be positive")
		}
		if t.Weight < 0 {
			problems = append(problems, name+".weight must not be negative")
		}
	}
	if c.SkillVerifications.RatioWeight < 0 {
		problems = append(problems, "skill_verifications.ratio_weight must not be negative")
	}

	caps := c.caps()
	total := 0
	for _, limit := range caps {
		if limit < 0 {
			problems = append(problems, "caps must not be negative")
			break
		}
		total += limit
	}
	if total > MaxTrustScore {
		problems = append(problems, fmt.Sprintf("caps sum to %d, above %d", total, MaxTrustScore))
	}

	if c.Decay.MonthlyRate < 0 || c.Decay.MonthlyRate >= 1 {
		problems = append(problems, "decay.monthly_rate must be in [0, 1)")
	}
	if c.Decay.DaysPerMonth <= 0 {
		problems = append(problems, "decay.days_per_month must be positive")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DecayRatePercent is the monthly decay rate as a percentage.
func (c Config) DecayRatePercent() float64 {
	return math.Round(c.Decay.MonthlyRate*100*1e4) / 1e4
}

func (c Config) caps() []int {
	return []int{
		c.PlatformActivity.Cap,
		c.SkillVerifications.Cap,
		c.Endorsements.Cap,
		c.Reviews.Cap,
		c.DeploymentMetrics.Cap,
		c.OnchainReputation.Cap,
		c.SecurityAudit.Cap,
		c.AccountAge.Cap,
	}
}
