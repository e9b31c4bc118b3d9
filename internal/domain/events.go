package domain

import "time"

// Domain event types persisted through the outbox.
const (
	EventCurrencyCreated = "currency.created"
	EventCurrencyUpdated = "currency.updated"
)

// ListenerBrokerBridge is the dispatch target that forwards enabled-currency
// events onto the broker topic.
const ListenerBrokerBridge = "broker.currency-enabled"

// CurrencyEvent is the payload of both currency.created and currency.updated.
type CurrencyEvent struct {
	CurrencySeriesID int64  `json:"currencySeriesId"`
	CurrencyCode     string `json:"currencyCode"`
	Enabled          bool   `json:"enabled"`
	CorrelationID    string `json:"correlationId"`
}

// OutboxEvent is a durable intent to publish, inserted in the same transaction
// as the business change that caused it. Pending iff CompletedAt is nil; rows
// are kept after completion for audit.
type OutboxEvent struct {
	ID              int64      `json:"id" db:"id"`
	ListenerID      string     `json:"listenerId" db:"listener_id"`
	EventType       string     `json:"eventType" db:"event_type"`
	Payload         []byte     `json:"payload" db:"payload"`
	PublicationDate time.Time  `json:"publicationDate" db:"publication_date"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" db:"completion_date"`
}

// Pending reports whether the event still awaits dispatch.
func (e OutboxEvent) Pending() bool { return e.CompletedAt == nil }
