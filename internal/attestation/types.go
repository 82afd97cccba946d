package attestation

import (
	"time"

	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

// Score is the query-time view of an agent's latest attestation.
type Score struct {
	AgentID    string `json:"agent_id"`
	Version    int    `json:"version"`
	TrustScore int    `json:"trust_score"`
	trust.ScoreSnapshot
	AsOf time.Time `json:"as_of"`
}

// Verification is the outcome of checking a stored attestation against its
// ledger anchor. Anchored is false when the record was stored without one.
type Verification struct {
	AgentID  string                  `json:"agent_id"`
	Version  int                     `json:"version"`
	TxHash   string                  `json:"tx_hash,omitempty"`
	Anchored bool                    `json:"anchored"`
	Pending  bool                    `json:"pending"`
	Match    bool                    `json:"match"`
	Onchain  *trust.TrustAttestation `json:"onchain,omitempty"`
}
