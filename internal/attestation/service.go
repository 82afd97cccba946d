// Package attestation issues, stores, anchors and serves trust attestations.
// Scoring is delegated to trust.Engine; everything here is I/O.
package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/hermes"
	"github.com/MikeSquared-Agency/vouch/internal/metrics"
	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

var (
	// ErrNoLedger is returned by Verify when no ledger is configured.
	ErrNoLedger = errors.New("no ledger configured")
	// ErrInvalidPayload marks caller input that cannot be scored or published.
	ErrInvalidPayload = errors.New("invalid attestation payload")
)

// Store persists versioned attestation records.
type Store interface {
	NextVersion(ctx context.Context, agentID string) (int, error)
	InsertAttestation(ctx context.Context, rec store.AttestationRecord) (store.AttestationRecord, error)
	LatestAttestation(ctx context.Context, agentID string) (store.AttestationRecord, error)
	AttestationHistory(ctx context.Context, agentID string, limit int) ([]store.AttestationRecord, error)
	ListLatestAttestations(ctx context.Context, limit int) ([]store.AttestationRecord, error)
}

// Ledger anchors attestation payloads and reads them back.
type Ledger interface {
	Submit(ctx context.Context, payload []byte) (string, error)
	Fetch(ctx context.Context, txHash string) ([]byte, bool, error)
}

// Cache holds the latest record per agent. Set must never replace a cached
// record with one of a lower version.
type Cache interface {
	Get(ctx context.Context, agentID string) (store.AttestationRecord, bool, error)
	Set(ctx context.Context, rec store.AttestationRecord) error
	Invalidate(ctx context.Context, agentID string) error
}

// Publisher emits events on the message bus.
type Publisher interface {
	Publish(subject string, data any) error
}

type Service struct {
	engine  *trust.Engine
	store   Store
	ledger  Ledger
	cache   Cache
	events  Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLedger(l Ledger) Option { return func(s *Service) { s.ledger = l } }

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock sets the clock used for query-time decay.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(engine *trust.Engine, st Store, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		store:  st,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasLedger reports whether attestations are anchored on chain.
func (s *Service) HasLedger() bool { return s.ledger != nil }

// Compute scores d without storing anything.
func (s *Service) Compute(d trust.AgentPlatformData) (trust.TrustAttestation, error) {
	if err := validate(d); err != nil {
		return trust.TrustAttestation{}, err
	}
	return s.engine.ComputeAttestation(d), nil
}

// Issue scores d and publishes the result.
func (s *Service) Issue(ctx context.Context, d trust.AgentPlatformData) (store.AttestationRecord, error) {
	att, err := s.Compute(d)
	if err != nil {
		return store.AttestationRecord{}, err
	}
	return s.Publish(ctx, att)
}

// Publish assigns the next version to a copy of att, anchors it on the
// ledger when one is configured, stores it, refreshes the cache and emits an
// issued event. A ledger failure aborts before anything is stored; cache and
// event failures are logged only.
func (s *Service) Publish(ctx context.Context, att trust.TrustAttestation) (store.AttestationRecord, error) {
	if att.AgentID == "" {
		return store.AttestationRecord{}, fmt.Errorf("%w: agent_id is required", ErrInvalidPayload)
	}

	version, err := s.store.NextVersion(ctx, att.AgentID)
	if err != nil {
		return store.AttestationRecord{}, fmt.Errorf("assign version: %w", err)
	}
	att.Version = version

	payload, err := json.Marshal(att)
	if err != nil {
		return store.AttestationRecord{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var txHash string
	if s.ledger != nil {
		txHash, err = s.ledger.Submit(ctx, payload)
		s.metrics.RecordLedger(err)
		if err != nil {
			return store.AttestationRecord{}, fmt.Errorf("anchor attestation: %w", err)
		}
	}

	rec, err := s.store.InsertAttestation(ctx, store.AttestationRecord{Attestation: att, TxHash: txHash})
	if err != nil {
		if txHash != "" && errors.Is(err, store.ErrVersionConflict) {
			s.logger.Warn("anchored attestation lost version race, transaction is orphaned",
				"agent_id", att.AgentID,
				"version", att.Version,
				"tx_hash", txHash,
			)
		}
		return store.AttestationRecord{}, fmt.Errorf("store attestation: %w", err)
	}

	s.metrics.RecordIssued(att.VerificationTier.String(), att.TrustScore)
	s.logger.Info("attestation issued",
		"agent_id", att.AgentID,
		"version", att.Version,
		"trust_score", att.TrustScore,
		"tier", att.VerificationTier.String(),
		"tx_hash", txHash,
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.Warn("failed to cache attestation", "agent_id", att.AgentID, "error", err)
			// drop the previous version so reads fall through to the store
			if err := s.cache.Invalidate(ctx, att.AgentID); err != nil {
				s.logger.Warn("failed to invalidate cached attestation", "agent_id", att.AgentID, "error", err)
			}
		}
	}

	if s.events != nil {
		evt := hermes.AttestationIssued{
			AgentID:          att.AgentID,
			Version:          att.Version,
			TrustScore:       att.TrustScore,
			VerificationTier: int(att.VerificationTier),
			TxHash:           txHash,
			IssuedAt:         att.IssuedAt,
		}
		if err := s.events.Publish(hermes.SubjectAttestationIssued, evt); err != nil {
			s.logger.Warn("failed to publish attestation event", "agent_id", att.AgentID, "error", err)
		}
	}

	return rec, nil
}

// Latest returns the newest record for agentID, from the cache when possible.
func (s *Service) Latest(ctx context.Context, agentID string) (store.AttestationRecord, error) {
	if s.cache != nil {
		rec, ok, err := s.cache.Get(ctx, agentID)
		if err != nil {
			s.logger.Warn("cache read failed", "agent_id", agentID, "error", err)
		} else if ok {
			return rec, nil
		}
	}

	rec, err := s.store.LatestAttestation(ctx, agentID)
	if err != nil {
		return store.AttestationRecord{}, err
	}

	// Set never replaces a newer cached version.
	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.Warn("failed to cache attestation", "agent_id", agentID, "error", err)
		}
	}
	return rec, nil
}

func (s *Service) History(ctx context.Context, agentID string, limit int) ([]store.AttestationRecord, error) {
	return s.store.AttestationHistory(ctx, agentID, limit)
}

func (s *Service) List(ctx context.Context, limit int) ([]store.AttestationRecord, error) {
	return s.store.ListLatestAttestations(ctx, limit)
}

// CurrentScore decays the latest attestation for agentID to the present.
func (s *Service) CurrentScore(ctx context.Context, agentID string) (Score, error) {
	rec, err := s.Latest(ctx, agentID)
	if err != nil {
		return Score{}, err
	}
	now := s.now()
	snap := s.engine.CurrentScore(rec.Attestation, now)
	return Score{
		AgentID:       agentID,
		Version:       rec.Attestation.Version,
		TrustScore:    rec.Attestation.TrustScore,
		ScoreSnapshot: snap,
		AsOf:          now,
	}, nil
}

// Verify reads the anchored payload of the latest attestation and compares
// it with the stored copy.
func (s *Service) Verify(ctx context.Context, agentID string) (Verification, error) {
	if s.ledger == nil {
		return Verification{}, ErrNoLedger
	}

	rec, err := s.store.LatestAttestation(ctx, agentID)
	if err != nil {
		return Verification{}, err
	}

	v := Verification{AgentID: agentID, Version: rec.Attestation.Version, TxHash: rec.TxHash}
	if rec.TxHash == "" {
		return v, nil
	}
	v.Anchored = true

	payload, pending, err := s.ledger.Fetch(ctx, rec.TxHash)
	if err != nil {
		return Verification{}, fmt.Errorf("fetch anchored attestation: %w", err)
	}
	v.Pending = pending

	var onchain trust.TrustAttestation
	if err := json.Unmarshal(payload, &onchain); err != nil {
		return Verification{}, fmt.Errorf("%w: anchored payload: %v", ErrInvalidPayload, err)
	}
	v.Onchain = &onchain
	v.Match = sameAttestation(onchain, rec.Attestation)
	return v, nil
}

func validate(d trust.AgentPlatformData) error {
	if d.AgentID == "" {
		return fmt.Errorf("%w: agent_id is required", ErrInvalidPayload)
	}
	if !d.VerificationTier.Valid() {
		return fmt.Errorf("%w: unknown verification tier %d", ErrInvalidPayload, uint8(d.VerificationTier))
	}
	return nil
}

// sameAttestation compares a and b field by field, treating times as equal
// when they denote the same instant.
func sameAttestation(a, b trust.TrustAttestation) bool {
	if !a.IssuedAt.Equal(b.IssuedAt) || !a.LastActivityAt.Equal(b.LastActivityAt) {
		return false
	}
	a.IssuedAt, b.IssuedAt = time.Time{}, time.Time{}
	a.LastActivityAt, b.LastActivityAt = time.Time{}, time.Time{}
	return a == b
}
