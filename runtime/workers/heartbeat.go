package workers

import (
	"chat-hub/contract"
	"chat-hub/observability"
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

type HeartbeatWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	metrics  *observability.ProcessMetrics
	interval time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	metrics *observability.ProcessMetrics,
	interval time.Duration,
) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:      log,
		registry: registry,
		metrics:  metrics,
		interval: interval,
	}
}

// Run samples process health (RAM, CPU, goroutines) every interval
// and publishes it as gauges next to the hub metrics.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			goroutines := goruntime.NumGoroutine()
			w.metrics.ResidentMemory.Set(float64(rss))
			w.metrics.CPUPercent.Set(cpu)
			w.metrics.Goroutines.Set(float64(goroutines))
			w.log.Debug("Heartbeat",
				"rss_bytes", rss,
				"cpu_percent", cpu,
				"goroutines", goroutines,
				"online_users", len(w.registry.ActiveIdentities()),
			)
		}
	}
}

// getSelfStats retrieves memory and CPU figures for the given process.
func getSelfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
