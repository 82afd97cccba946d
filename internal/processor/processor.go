package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// Issuer is the part of the attestation service the processor drives.
type Issuer interface {
	Issue(ctx context.Context, d trust.AgentPlatformData) (store.AttestationRecord, error)
}

// Processor turns metrics reported over NATS into attestations.
type Processor struct {
	issuer  Issuer
	logger  *slog.Logger
	timeout time.Duration
}

func New(issuer Issuer, logger *slog.Logger) *Processor {
	return &Processor{
		issuer:  issuer,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// HandleMetricsReported is the NATS handler for swarm.agent.metrics.reported.
// Failures are logged and the message is dropped.
func (p *Processor) HandleMetricsReported(subject string, data []byte) {
	var d trust.AgentPlatformData
	if err := json.Unmarshal(data, &d); err != nil {
		p.logger.Error("failed to parse metrics event", "subject", subject, "error", err)
		return
	}
	if d.AgentID == "" {
		p.logger.Warn("metrics event without agent_id", "subject", subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	rec, err := p.issuer.Issue(ctx, d)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, store.ErrVersionConflict) {
			// a concurrent issue for the same agent won the version
			level = slog.LevelWarn
		}
		p.logger.Log(ctx, level, "failed to issue attestation", "agent_id", d.AgentID, "error", err)
		return
	}

	p.logger.Info("processed metrics report",
		"agent_id", d.AgentID,
		"version", rec.Attestation.Version,
		"trust_score", rec.Attestation.TrustScore,
	)
}
