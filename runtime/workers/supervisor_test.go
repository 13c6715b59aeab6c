package workers

import (
	"chat-hub/mocks"
	"chat-hub/observability"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newSupervisor(clock clockwork.Clock) (*Supervisor, *observability.HubMetrics) {
	metrics := observability.NewHubMetrics(prometheus.NewRegistry())
	return NewSupervisor(slog.Default(), clock, metrics, time.Minute), metrics
}

func TestSupervisor_Restarts_After_The_Delay(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	clock := clockwork.NewFakeClock()
	sup, metrics := newSupervisor(clock)

	// Given a worker panicking, then failing, then running until canceled
	var calls atomic.Int32
	running := make(chan struct{})
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			switch calls.Add(1) {
			case 1:
				panic("boom")
			case 2:
				return fmt.Errorf("lost connection")
			}
			close(running)
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(ctx)
		close(done)
	}()

	// When the supervisor waits on the restart delay
	req.NoError(clock.BlockUntilContext(ctx, 1))

	// Then nothing restarts before the clock moves
	req.Equal(int32(1), calls.Load())
	req.Equal(1.0, testutil.ToFloat64(metrics.WorkerRestarts.WithLabelValues("MockWorker", causePanic)))

	clock.Advance(time.Minute)
	req.NoError(clock.BlockUntilContext(ctx, 1))
	req.Equal(int32(2), calls.Load())
	req.Equal(1.0, testutil.ToFloat64(metrics.WorkerRestarts.WithLabelValues("MockWorker", causeError)))

	clock.Advance(time.Minute)
	<-running
	sup.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped")
	}
	req.Equal(2, testutil.CollectAndCount(metrics.WorkerRestarts))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	sup, metrics := newSupervisor(clockwork.NewFakeClock())

	// Given a worker running only once
	workerMock.EXPECT().
		Run(gomock.Any()).
		Return(nil).
		Times(1)

	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then the supervisor returned without a restart
		req.Equal(0, testutil.CollectAndCount(metrics.WorkerRestarts))
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_Stop_During_Restart_Delay(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	clock := clockwork.NewFakeClock()
	sup, _ := newSupervisor(clock)

	// Given a worker failing once
	workerMock.EXPECT().
		Run(gomock.Any()).
		Return(fmt.Errorf("boom")).
		Times(1)

	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	// When the supervisor is stopped while waiting to restart
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req.NoError(clock.BlockUntilContext(ctx, 1))
	sup.Stop()

	// Then Run returns without running the worker again
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped")
	}
}

func TestSupervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	sup, _ := newSupervisor(clockwork.NewFakeClock())

	// Given a worker blocking until its context ends
	started := make(chan struct{})
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(1)

	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	// When the supervisor is stopped
	<-started
	sup.Stop()

	// Then Run returns without restarting the worker
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped")
	}
}
