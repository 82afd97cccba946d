package processor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/vouch/internal/hermes"
	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

type fakeIssuer struct {
	calls []trust.AgentPlatformData
	err   error
}

func (f *fakeIssuer) Issue(ctx context.Context, d trust.AgentPlatformData) (store.AttestationRecord, error) {
	f.calls = append(f.calls, d)
	if _, ok := ctx.Deadline(); !ok {
		return store.AttestationRecord{}, errors.New("expected a deadline")
	}
	if f.err != nil {
		return store.AttestationRecord{}, f.err
	}
	return store.AttestationRecord{Attestation: trust.TrustAttestation{AgentID: d.AgentID, Version: 1}}, nil
}

func newTestProcessor(issuer Issuer) (*Processor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return New(issuer, logger), &buf
}

func TestHandleMetricsReported(t *testing.T) {
	issuer := &fakeIssuer{}
	p, logs := newTestProcessor(issuer)

	payload := `{"agent_id":"agent-9","den_messages":40,"verification_tier":"audited","last_activity_at":"2026-05-01T00:00:00Z"}`
	p.HandleMetricsReported(hermes.SubjectMetricsReported, []byte(payload))

	if len(issuer.calls) != 1 {
		t.Fatalf("expected 1 issue call, got %d", len(issuer.calls))
	}
	got := issuer.calls[0]
	if got.AgentID != "agent-9" || got.DenMessages != 40 || got.VerificationTier != trust.TierAudited {
		t.Errorf("unexpected decoded data: %+v", got)
	}
	if !strings.Contains(logs.String(), "processed metrics report") {
		t.Errorf("expected success log, got %s", logs.String())
	}
}

func TestHandleMetricsReported_BadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		log     string
	}{
		{"not json", `{{{`, "failed to parse metrics event"},
		{"unknown tier", `{"agent_id":"a","verification_tier":"platinum"}`, "failed to parse metrics event"},
		{"missing agent id", `{"den_messages":5}`, "metrics event without agent_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &fakeIssuer{}
			p, logs := newTestProcessor(issuer)

			p.HandleMetricsReported(hermes.SubjectMetricsReported, []byte(tt.payload))

			if len(issuer.calls) != 0 {
				t.Errorf("expected no issue call, got %d", len(issuer.calls))
			}
			if !strings.Contains(logs.String(), tt.log) {
				t.Errorf("expected log %q, got %s", tt.log, logs.String())
			}
		})
	}
}

func TestHandleMetricsReported_IssueFailure(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"store failure", errors.New("db down"), `"level":"ERROR"`},
		{"version race", store.ErrVersionConflict, `"level":"WARN"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &fakeIssuer{err: tt.err}
			p, logs := newTestProcessor(issuer)

			p.HandleMetricsReported(hermes.SubjectMetricsReported, []byte(`{"agent_id":"agent-1"}`))

			out := logs.String()
			if !strings.Contains(out, "failed to issue attestation") || !strings.Contains(out, tt.level) {
				t.Errorf("expected %s failure log, got %s", tt.level, out)
			}
		})
	}
}
