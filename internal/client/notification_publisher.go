package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes proposal and approval events to NATS
// for consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>, e.g. notifications.proposals.approval_required
//
// All publish operations are non-fatal: errors are logged but never propagated
// to the caller, so notification failures never interrupt proposal operations.
type NotificationPublisher struct {
	conn   publisher
	prefix string
	log    zerolog.Logger
}

// publisher is the subset of *nats.Conn the publisher needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Event types.
const (
	EventProposalSent        = "proposal_sent"
	EventProposalAccepted    = "proposal_accepted"
	EventProposalDeclined    = "proposal_declined"
	EventApprovalRequired    = "approval_required"
	EventProposalApproved    = "proposal_approved"
	EventProposalRejected    = "proposal_rejected"
	EventApprovalCancelled   = "approval_cancelled"
	EventApprovalStepDecided = "approval_step_decided"
)

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// ConnectNATS dials the NATS server and logs connection state changes.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection yields a publisher that drops every event.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	p := &NotificationPublisher{prefix: prefix, log: log}
	if conn != nil {
		p.conn = conn
	}
	return p
}

// PublishProposalEvent publishes a proposal event to NATS.
// Subject: <prefix>.<eventType>
func (p *NotificationPublisher) PublishProposalEvent(_ context.Context, eventType, proposalID, entityID, actorID string, recipients []string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		EntityID:     entityID,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "proposal",
		ResourceID:   proposalID,
		IsActionable: eventType == EventApprovalRequired,
		Severity:     "info",
		Category:     "sales_proposals",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("proposal_id", proposalID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("proposal_id", proposalID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
