package workers

import (
	"chat-hub/contract"
	"chat-hub/errors"
	"chat-hub/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultRestartInterval = 200 * time.Millisecond

const (
	causePanic = "panic"
	causeError = "error"
)

// Supervisor keeps the presence fanout and the heartbeat alive for the
// lifetime of the server. A worker returning nil is done for good, a worker
// failing or panicking is restarted after restartInterval on the injected clock.
type Supervisor struct {
	log             *slog.Logger
	clock           clockwork.Clock
	metrics         *observability.HubMetrics
	restartInterval time.Duration

	wg      sync.WaitGroup
	mu      sync.Mutex
	cancel  context.CancelFunc
	workers []contract.Worker
}

func NewSupervisor(log *slog.Logger, clock clockwork.Clock, metrics *observability.HubMetrics, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, clock: clock, metrics: metrics, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them have returned.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(ctx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			err := runOnce(ctx, worker)
			switch {
			case err == nil:
				s.log.Info("Worker finished", "name", name)
				return
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "name", name)
				return
			}

			cause := causeError
			if errors.Is(err, errors.ErrWorkerPanic) {
				cause = causePanic
			}
			s.metrics.WorkerRestarts.WithLabelValues(name, cause).Inc()
			s.log.Warn("Worker failed, restarting", "name", name, "cause", cause, "error", err, "delay", s.restartInterval)

			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.restartInterval):
			}
		}
	}()
}

// Stop cancels the workers started by Run. Run returns once they are gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}
