package workers

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"chat-hub/observability"
	"context"
	"log/slog"
	"time"
)

// PresenceFanout broadcasts the active users snapshot to every connection.
//
// Notifications are coalesced: many connects and disconnects between two runs
// produce a single broadcast, and the snapshot is read when the broadcast
// starts, so the latest state wins. No ordering with message events is implied.
type PresenceFanout struct {
	log      *slog.Logger
	registry contract.IRegistry
	metrics  *observability.HubMetrics
	signal   chan struct{}
	timeout  time.Duration
}

func NewPresenceFanout(log *slog.Logger, registry contract.IRegistry, metrics *observability.HubMetrics, timeout time.Duration) *PresenceFanout {
	return &PresenceFanout{
		log:      log,
		registry: registry,
		metrics:  metrics,
		signal:   make(chan struct{}, 1),
		timeout:  timeout,
	}
}

// Notify never blocks; a pending signal already covers this change.
func (w *PresenceFanout) Notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *PresenceFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-w.signal:
			w.Broadcast(ctx)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence fanout")
			return nil
		}
	}
}

// Broadcast sends the current snapshot to every live connection.
func (w *PresenceFanout) Broadcast(ctx context.Context) {
	users := event.ActiveUsers(w.registry.ActiveIdentities())
	if users == nil {
		users = event.ActiveUsers{}
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	for _, conn := range w.registry.Connections() {
		if err := conn.Consume(ctx, users); err != nil {
			w.metrics.DeliveriesDropped.WithLabelValues(users.Name()).Inc()
			w.log.Debug("Presence delivery dropped", "conn_id", conn.ID(), "error", err)
		}
	}
	w.metrics.PresenceBroadcasts.Inc()
}
