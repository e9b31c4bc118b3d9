package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/persistence"
)

// fakeOutboxRepo is an in-memory OutboxRepo.
type fakeOutboxRepo struct {
	mu     sync.Mutex
	nextID int64
	events []domain.OutboxEvent
}

func (f *fakeOutboxRepo) Insert(_ context.Context, e *domain.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	e.PublicationDate = time.Now().UTC()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeOutboxRepo) FindPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxEvent
	for _, e := range f.events {
		if e.Pending() {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeOutboxRepo) MarkCompleted(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == id {
			completed := at
			f.events[i].CompletedAt = &completed
			return nil
		}
	}
	return errors.New("event not found")
}

func (f *fakeOutboxRepo) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.OutboxEvent
	var removed int64
	for _, e := range f.events {
		if e.CompletedAt != nil && e.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return removed, nil
}

func (f *fakeOutboxRepo) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, e := range f.events {
		if e.Pending() {
			n++
		}
	}
	return n
}

func newTestWorker(repo *fakeOutboxRepo) *Worker {
	store := &persistence.Store{Outbox: repo}
	return NewWorker(store, config.OutboxConfig{
		PollInterval:  10 * time.Millisecond,
		Workers:       2,
		RetentionDays: 30,
	})
}

func TestPublishPersistsEncodedEvent(t *testing.T) {
	repo := &fakeOutboxRepo{}
	store := &persistence.Store{Outbox: repo}

	err := Publish(context.Background(), store, domain.ListenerBrokerBridge,
		domain.EventCurrencyCreated, domain.CurrencyEvent{
			CurrencySeriesID: 7,
			CurrencyCode:     "EUR",
			Enabled:          true,
			CorrelationID:    "abc-123",
		})
	require.NoError(t, err)

	require.Len(t, repo.events, 1)
	e := repo.events[0]
	assert.Equal(t, domain.ListenerBrokerBridge, e.ListenerID)
	assert.Equal(t, domain.EventCurrencyCreated, e.EventType)
	assert.True(t, e.Pending())

	var payload domain.CurrencyEvent
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "EUR", payload.CurrencyCode)
	assert.Equal(t, "abc-123", payload.CorrelationID)
}

func TestScanDispatchesAndCompletes(t *testing.T) {
	repo := &fakeOutboxRepo{}
	store := &persistence.Store{Outbox: repo}
	require.NoError(t, Publish(context.Background(), store, "listener-a", "evt", map[string]string{"k": "v"}))
	require.NoError(t, Publish(context.Background(), store, "listener-a", "evt", map[string]string{"k": "w"}))

	var mu sync.Mutex
	var handled []int64

	w := newTestWorker(repo)
	w.Register("listener-a", func(_ context.Context, e domain.OutboxEvent) error {
		mu.Lock()
		handled = append(handled, e.ID)
		mu.Unlock()
		return nil
	})

	w.scan(context.Background())

	mu.Lock()
	assert.Len(t, handled, 2)
	mu.Unlock()
	assert.Zero(t, repo.pendingCount())
}

func TestFailingListenerLeavesEventPending(t *testing.T) {
	repo := &fakeOutboxRepo{}
	store := &persistence.Store{Outbox: repo}
	require.NoError(t, Publish(context.Background(), store, "listener-a", "evt", map[string]string{}))

	w := newTestWorker(repo)
	calls := 0
	w.Register("listener-a", func(context.Context, domain.OutboxEvent) error {
		calls++
		if calls == 1 {
			return errors.New("broker down")
		}
		return nil
	})

	w.scan(context.Background())
	assert.Equal(t, 1, repo.pendingCount())

	// Next scan retries and succeeds.
	w.scan(context.Background())
	assert.Zero(t, repo.pendingCount())
	assert.Equal(t, 2, calls)
}

func TestUnknownListenerStaysPending(t *testing.T) {
	repo := &fakeOutboxRepo{}
	store := &persistence.Store{Outbox: repo}
	require.NoError(t, Publish(context.Background(), store, "unregistered", "evt", map[string]string{}))

	w := newTestWorker(repo)
	w.scan(context.Background())

	assert.Equal(t, 1, repo.pendingCount())
}

func TestStartReplaysPendingEvents(t *testing.T) {
	repo := &fakeOutboxRepo{}
	store := &persistence.Store{Outbox: repo}
	require.NoError(t, Publish(context.Background(), store, "listener-a", "evt", map[string]string{}))

	done := make(chan struct{})
	w := newTestWorker(repo)
	w.Register("listener-a", func(context.Context, domain.OutboxEvent) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pending event was not replayed on start")
	}
}

func TestDeleteCompletedBeforeSweep(t *testing.T) {
	repo := &fakeOutboxRepo{}
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC()
	repo.events = []domain.OutboxEvent{
		{ID: 1, ListenerID: "a", CompletedAt: &old},
		{ID: 2, ListenerID: "a", CompletedAt: &recent},
		{ID: 3, ListenerID: "a"},
	}
	repo.nextID = 3

	removed, err := repo.DeleteCompletedBefore(context.Background(),
		time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.Len(t, repo.events, 2)
}
