package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

const uniqueViolation = "23505"

// AttestationRecord is a stored, versioned attestation. TxHash is empty when
// the attestation was not anchored on a ledger.
type AttestationRecord struct {
	ID          uuid.UUID              `json:"id"`
	Attestation trust.TrustAttestation `json:"attestation"`
	TxHash      string                 `json:"tx_hash,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

const recordColumns = `id, attestation, tx_hash, created_at`

// NextVersion returns the version the next attestation for agentID should
// carry: one past the highest stored version, or 1 for a new agent.
func (s *Store) NextVersion(ctx context.Context, agentID string) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM trust_attestations WHERE agent_id = $1`,
		agentID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return version, nil
}

// InsertAttestation persists rec. A zero ID is replaced with a fresh UUID and
// the stored record is returned.
func (s *Store) InsertAttestation(ctx context.Context, rec AttestationRecord) (AttestationRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	payload, err := json.Marshal(rec.Attestation)
	if err != nil {
		return AttestationRecord{}, fmt.Errorf("marshal attestation: %w", err)
	}

	att := rec.Attestation
	err = s.pool.QueryRow(ctx, `
		INSERT INTO trust_attestations
			(id, agent_id, version, trust_score, verification_tier, issued_at, last_activity_at, tx_hash, attestation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		rec.ID, att.AgentID, att.Version, att.TrustScore, int16(att.VerificationTier),
		att.IssuedAt, att.LastActivityAt, rec.TxHash, payload,
	).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return AttestationRecord{}, fmt.Errorf("insert attestation %s v%d: %w", att.AgentID, att.Version, ErrVersionConflict)
		}
		return AttestationRecord{}, fmt.Errorf("insert attestation: %w", err)
	}
	return rec, nil
}

// LatestAttestation returns the highest-version record for agentID.
func (s *Store) LatestAttestation(ctx context.Context, agentID string) (AttestationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM trust_attestations
		WHERE agent_id = $1
		ORDER BY version DESC
		LIMIT 1`,
		agentID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AttestationRecord{}, ErrNotFound
	}
	if err != nil {
		return AttestationRecord{}, fmt.Errorf("latest attestation: %w", err)
	}
	return rec, nil
}

// AttestationHistory returns up to limit records for agentID, newest first.
func (s *Store) AttestationHistory(ctx context.Context, agentID string, limit int) ([]AttestationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM trust_attestations
		WHERE agent_id = $1
		ORDER BY version DESC
		LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attestation history: %w", err)
	}
	return collectRecords(rows)
}

// ListLatestAttestations returns the latest record of up to limit agents,
// highest trust score first.
func (s *Store) ListLatestAttestations(ctx context.Context, limit int) ([]AttestationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM (
			SELECT DISTINCT ON (agent_id) id, attestation, tx_hash, created_at, agent_id, trust_score
			FROM trust_attestations
			ORDER BY agent_id, version DESC
		) latest
		ORDER BY trust_score DESC, agent_id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest attestations: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]AttestationRecord, error) {
	defer rows.Close()

	var out []AttestationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attestations: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (AttestationRecord, error) {
	var (
		rec     AttestationRecord
		payload []byte
	)
	if err := row.Scan(&rec.ID, &payload, &rec.TxHash, &rec.CreatedAt); err != nil {
		return AttestationRecord{}, err
	}
	if err := json.Unmarshal(payload, &rec.Attestation); err != nil {
		return AttestationRecord{}, fmt.Errorf("decode attestation %s: %w", rec.ID, err)
	}
	return rec, nil
}
