package domain

import "time"

// OutboxStatus enumerates delivery states for an outbox row. Status is
// monotone except for the explicit operator replay of a DEAD_LETTER
// row back to PENDING.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusDeadLetter OutboxStatus = "DEAD_LETTER"
)

// OutboxEvent is a durably queued side effect, created only inside the
// same transaction as the ticket mutation that caused it.
type OutboxEvent struct {
	ID             string
	AggregateType  string
	AggregateID    string
	EventType      string
	Payload        map[string]any
	IdempotencyKey string
	Status         OutboxStatus
	AttemptCount   int
	NextAttemptAt  time.Time
	LastError      *string
	// ProviderMetadata is filled when the channel provider accepts
	// the message (SENT rows only).
	ProviderMetadata map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RiskLevel classifies how much scrutiny automated progression needs.
type RiskLevel string

const (
	RiskLevelLow  RiskLevel = "low"
	RiskLevelHigh RiskLevel = "high"
)

// RiskProfile is the structured classification attached to risk-gate
// rejections and candidate snapshots.
type RiskProfile struct {
	Level        RiskLevel `json:"level"`
	Reasons      []string  `json:"reasons"`
	IncidentType string    `json:"incident_type"`
}
