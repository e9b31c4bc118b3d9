// Package outbox implements the transactional outbox: events persist in the
// same transaction as the business change that caused them, and a background
// worker bridges pending rows to their listeners.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/persistence"
)

// Publish enqueues an event on the given store. Callers inside WithinTx pass
// the transaction-bound store, which makes the insert atomic with their
// business writes.
func Publish(ctx context.Context, s *persistence.Store, listenerID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	return s.Outbox.Insert(ctx, &domain.OutboxEvent{
		ListenerID: listenerID,
		EventType:  eventType,
		Payload:    data,
	})
}
