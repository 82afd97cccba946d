package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectAttestationIssued carries an AttestationIssued event per publish.
	SubjectAttestationIssued = "swarm.vouch.attestation.issued"
	// SubjectMetricsReported is where platforms push raw agent metrics.
	SubjectMetricsReported = "swarm.agent.metrics.reported"
	// SubjectRegistered announces the service on startup.
	SubjectRegistered = "swarm.agent.vouch.registered"
)

// AttestationIssued is emitted after an attestation is stored (and anchored,
// when a ledger is configured).
type AttestationIssued struct {
	AgentID          string    `json:"agent_id"`
	Version          int       `json:"version"`
	TrustScore       int       `json:"trust_score"`
	VerificationTier int       `json:"verification_tier"`
	TxHash           string    `json:"tx_hash,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("vouch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Flush waits for the server to acknowledge everything published so far.
// ctx must carry a deadline.
func (c *Client) Flush(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
