package workers

import (
	"context"
	"log/slog"
	"os"
	"quorum/contract"
	"quorum/domain/event"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker reports the server's own CPU, memory, goroutines
// and live connections on every tick.
type ProcessStatsWorker struct {
	log            *slog.Logger
	registry       contract.IRegistry
	telemetryChan  chan event.Event
	metricInterval time.Duration
	pid            int32
}

func NewProcessStatsWorker(log *slog.Logger, registry contract.IRegistry,
	telemetryChan chan event.Event, metricInterval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{
		log:            log,
		registry:       registry,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process stats")
			return nil
		case <-ticker.C:
			evt, err := w.sample(p)
			if err != nil {
				w.log.Error("Unable to sample process", "pid", w.pid, "error", err)
				continue
			}
			select {
			case w.telemetryChan <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

func (w *ProcessStatsWorker) sample(p *process.Process) (event.Event, error) {
	status, err := p.Status()
	if err != nil {
		return event.Event{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return event.Event{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return event.Event{}, err
	}
	return event.New(event.PIDTrackerType, event.ProcessTracker{
		PID:         w.pid,
		Status:      event.ProcessState(status),
		Cpu:         cpu,
		Ram:         ram,
		Goroutines:  goruntime.NumGoroutine(),
		Connections: w.registry.Stats().Connections,
	}), nil
}
