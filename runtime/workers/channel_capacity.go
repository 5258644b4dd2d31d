package workers

import (
	"context"
	"log/slog"
	"quorum/domain/event"
	"reflect"
	"time"
)

// Gauge samples the fill level of a bounded queue.
type Gauge struct {
	Name string
	Len  func() int
	Cap  func() int
}

// ChannelGauge wraps any channel. Reading len and cap never blocks the channel's users.
func ChannelGauge(name string, channel any) Gauge {
	v := reflect.ValueOf(channel)
	if v.Kind() != reflect.Chan {
		return Gauge{Name: name, Len: func() int { return 0 }, Cap: func() int { return -1 }}
	}
	return Gauge{Name: name, Len: v.Len, Cap: v.Cap}
}

// ChannelCapacityWorker periodically reports each gauge as a ChannelCapacity event.
// Samples dropped on a full telemetry channel are simply lost.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	gauges         []Gauge
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, telemetryChan chan event.Event,
	metricInterval time.Duration, gauges ...Gauge) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		gauges:         gauges,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	for _, g := range w.gauges {
		capacity := g.Cap()
		if capacity < 0 {
			w.log.Error("Provided object is not a channel", "name", g.Name)
			continue
		}
		select {
		case w.telemetryChan <- event.New(event.ChannelCapacityType, event.ChannelCapacity{
			ChannelName: g.Name,
			Capacity:    capacity,
			Length:      g.Len(),
		}):
		default:
			w.log.Debug("Observability telemetry event lost")
		}
	}
}
