package domain

import (
	"context"
)

// EventBus carries pipeline events to downstream consumers (dashboards,
// notification services). Backed by Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the scoring pipeline.
const (
	TopicTransactionScored = "risk.transaction.scored"
	TopicCaseOpened        = "risk.case.opened"
	TopicAlert             = "risk.alert"
	TopicPortfolioMetric   = "risk.portfolio.metric"
)

// CaseOpenedEvent is the payload published on TopicCaseOpened.
type CaseOpenedEvent struct {
	CaseID        string   `json:"caseId"`
	TransactionID string   `json:"transactionId"`
	Tier          RiskTier `json:"tier"`
	Score         float64  `json:"score"`
	Reasons       []string `json:"reasons,omitempty"`
}
