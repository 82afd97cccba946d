package trust

import "time"

// Engine scores agents against a fixed weight table. It has no mutable state
// and is safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used to stamp attestations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an engine over a private copy of cfg.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a copy of the weight table.
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeAttestation issues an attestation stamped with the engine clock.
func (e *Engine) ComputeAttestation(d AgentPlatformData) TrustAttestation {
	return e.ComputeAttestationAt(d, e.now())
}

// ComputeAttestationAt issues an attestation as of now. The same instant is
// used for the issuance stamp and the decay reference, so identical input and
// now always give an identical attestation.
func (e *Engine) ComputeAttestationAt(d AgentPlatformData, now time.Time) TrustAttestation {
	raw := ScoreComponents(e.cfg, d)
	decayed := e.cfg.DecayComponents(raw, d.LastActivityAt, now)

	return TrustAttestation{
		AgentID:          d.AgentID,
		DisplayName:      d.DisplayName,
		ChainAddress:     d.ChainAddress,
		Components:       decayed,
		TrustScore:       decayed.Sum(),
		VerificationTier: d.VerificationTier,
		IssuedAt:         now,
		Issuer:           e.cfg.Issuer,
		Version:          1,
		LastActivityAt:   d.LastActivityAt,
		DecayRatePercent: e.cfg.DecayRatePercent(),
	}
}

// CurrentScore is the query-time decayed value of att.
func (e *Engine) CurrentScore(att TrustAttestation, now time.Time) ScoreSnapshot {
	return e.cfg.CurrentScore(att, now)
}
