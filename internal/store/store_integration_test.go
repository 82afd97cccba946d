//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run must be a no-op
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testAttestation(agentID string, version, score int) trust.TrustAttestation {
	now := time.Now().UTC().Truncate(time.Second)
	return trust.TrustAttestation{
		AgentID:          agentID,
		DisplayName:      "Integration Agent",
		Components:       trust.ComponentScores{PlatformActivity: score},
		TrustScore:       score,
		VerificationTier: trust.TierVerified,
		IssuedAt:         now,
		Issuer:           trust.DefaultIssuer,
		Version:          version,
		LastActivityAt:   now,
		DecayRatePercent: 5,
	}
}

func TestIntegration_AttestationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	agentID := "integration-" + uuid.New().String()[:8]

	v, err := s.NextVersion(ctx, agentID)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1 for new agent, got %d", v)
	}

	if _, err := s.LatestAttestation(ctx, agentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first, err := s.InsertAttestation(ctx, AttestationRecord{Attestation: testAttestation(agentID, 1, 120)})
	if err != nil {
		t.Fatalf("InsertAttestation v1: %v", err)
	}
	if first.ID == uuid.Nil || first.CreatedAt.IsZero() {
		t.Errorf("expected id and created_at populated, got %+v", first)
	}

	if _, err := s.InsertAttestation(ctx, AttestationRecord{Attestation: testAttestation(agentID, 1, 130)}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if _, err := s.InsertAttestation(ctx, AttestationRecord{Attestation: testAttestation(agentID, 2, 140), TxHash: "0xabc"}); err != nil {
		t.Fatalf("InsertAttestation v2: %v", err)
	}

	latest, err := s.LatestAttestation(ctx, agentID)
	if err != nil {
		t.Fatalf("LatestAttestation: %v", err)
	}
	if latest.Attestation.Version != 2 || latest.Attestation.TrustScore != 140 || latest.TxHash != "0xabc" {
		t.Errorf("unexpected latest record: %+v", latest)
	}
	if latest.Attestation.VerificationTier != trust.TierVerified {
		t.Errorf("tier not round-tripped: %s", latest.Attestation.VerificationTier)
	}

	history, err := s.AttestationHistory(ctx, agentID, 10)
	if err != nil {
		t.Fatalf("AttestationHistory: %v", err)
	}
	if len(history) != 2 || history[0].Attestation.Version != 2 || history[1].Attestation.Version != 1 {
		t.Errorf("expected history v2, v1; got %+v", history)
	}

	if v, _ := s.NextVersion(ctx, agentID); v != 3 {
		t.Errorf("expected next version 3, got %d", v)
	}

	all, err := s.ListLatestAttestations(ctx, 500)
	if err != nil {
		t.Fatalf("ListLatestAttestations: %v", err)
	}
	seen := 0
	for _, rec := range all {
		if rec.Attestation.AgentID == agentID {
			seen++
			if rec.Attestation.Version != 2 {
				t.Errorf("list returned stale version %d", rec.Attestation.Version)
			}
		}
	}
	if seen != 1 {
		t.Errorf("expected agent listed once, got %d", seen)
	}
}
