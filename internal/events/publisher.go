// Package events announces new matches on NATS and queues them as asynq tasks,
// so that messaging and notification services can react without polling the
// match store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

const DefaultSubject = "matches.created"

// Connect dials NATS with the reconnect policy used by all matchengine
// processes.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("matchengine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// NATSPublisher publishes MatchCreated events as JSON.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) PublishMatchCreated(ctx context.Context, event matching.MatchCreated) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if correlationID := telemetry.GetCorrelationID(ctx); correlationID != "" {
		msg.Header.Set("X-Correlation-ID", correlationID)
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish match event: %w", err)
	}

	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "publish_match_created",
		"subject":   p.subject,
		"match_id":  event.MatchID,
	}).Debug("Match event published")
	return nil
}

