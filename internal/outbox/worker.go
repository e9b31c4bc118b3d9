package outbox

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
	"github.com/sawpanic/fxrates/internal/persistence"
)

// scanBatchSize bounds one poll's worth of pending events.
const scanBatchSize = 100

// Listener handles one outbox event. A nil return marks the row completed; an
// error leaves it pending for the next scan, so listeners must be idempotent.
type Listener func(ctx context.Context, e domain.OutboxEvent) error

// Worker polls pending events and dispatches them on a bounded pool. The
// first scan on Start replays whatever a previous process left pending.
type Worker struct {
	store     *persistence.Store
	interval  time.Duration
	retention time.Duration
	slots     chan struct{}
	listeners map[string]Listener
	logger    zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWorker builds an outbox worker from configuration.
func NewWorker(store *persistence.Store, cfg config.OutboxConfig) *Worker {
	return &Worker{
		store:     store,
		interval:  cfg.PollInterval,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		slots:     make(chan struct{}, cfg.Workers),
		listeners: make(map[string]Listener),
		logger:    log.With().Str("component", "outbox").Logger(),
		stop:      make(chan struct{}),
	}
}

// Register binds a listener id to its handler. Must be called before Start.
func (w *Worker) Register(listenerID string, l Listener) {
	w.listeners[listenerID] = l
}

// Start launches the poll loop and, when retention is configured, the sweep
// loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.pollLoop(ctx)

	if w.retention > 0 {
		w.wg.Add(1)
		go w.sweepLoop(ctx)
	}
}

// Stop halts the loops and waits for in-flight dispatches.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	// Replay scan: anything still pending from before a restart goes first.
	w.scan(ctx)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(w.jitteredInterval()):
			w.scan(ctx)
		}
	}
}

// jitteredInterval spreads replica scans so they do not poll in lockstep.
func (w *Worker) jitteredInterval() time.Duration {
	return w.interval + time.Duration(rand.Int63n(int64(w.interval/2)+1))
}

func (w *Worker) scan(ctx context.Context) {
	pending, err := w.store.Outbox.FindPending(ctx, scanBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("outbox scan failed")
		return
	}
	metrics.OutboxPending.Set(float64(len(pending)))
	if len(pending) == 0 {
		return
	}

	var batch sync.WaitGroup
	for _, event := range pending {
		select {
		case w.slots <- struct{}{}:
		case <-w.stop:
			return
		}

		batch.Add(1)
		go func(e domain.OutboxEvent) {
			defer batch.Done()
			defer func() { <-w.slots }()
			w.dispatch(ctx, e)
		}(event)
	}
	batch.Wait()
}

func (w *Worker) dispatch(ctx context.Context, e domain.OutboxEvent) {
	listener, ok := w.listeners[e.ListenerID]
	if !ok {
		// Unknown listener ids stay pending: losing the event would be worse
		// than retrying once the listener is registered again.
		w.logger.Error().Str("listener", e.ListenerID).Int64("event", e.ID).
			Msg("no listener registered for outbox event")
		metrics.OutboxDispatches.WithLabelValues(e.ListenerID, "unroutable").Inc()
		return
	}

	if err := listener(ctx, e); err != nil {
		w.logger.Warn().Err(err).Str("listener", e.ListenerID).Int64("event", e.ID).
			Msg("outbox listener failed, event stays pending")
		metrics.OutboxDispatches.WithLabelValues(e.ListenerID, "error").Inc()
		return
	}

	if err := w.store.Outbox.MarkCompleted(ctx, e.ID, time.Now().UTC()); err != nil {
		w.logger.Error().Err(err).Int64("event", e.ID).Msg("failed to mark outbox event completed")
		return
	}
	metrics.OutboxDispatches.WithLabelValues(e.ListenerID, "ok").Inc()
}

func (w *Worker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-w.retention)
			n, err := w.store.Outbox.DeleteCompletedBefore(ctx, cutoff)
			if err != nil {
				w.logger.Error().Err(err).Msg("outbox retention sweep failed")
				continue
			}
			if n > 0 {
				w.logger.Info().Int64("rows", n).Msg("outbox retention sweep removed completed events")
			}
		}
	}
}
