package workers

import (
	"context"
	"log/slog"
	"os"
	"quorum/domain"
	"quorum/domain/event"
	"quorum/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingHandler struct {
	events chan event.Event
}

func (h recordingHandler) Handle(evt event.Event) { h.events <- evt }

func TestTelemetryWorker_Dispatches_To_Every_Handler(t *testing.T) {
	req := require.New(t)
	telemetryChan := make(chan event.Event, 1)
	first := recordingHandler{events: make(chan event.Event, 1)}
	second := recordingHandler{events: make(chan event.Event, 1)}
	worker := NewTelemetryWorker(logs.GetLoggerFromLevel(slog.LevelDebug), telemetryChan, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// When
	telemetryChan <- event.New(event.CensorshipHitType, event.Censored{Group: "g1"})

	// Then
	for _, h := range []recordingHandler{first, second} {
		select {
		case evt := <-h.events:
			req.Equal(event.CensorshipHitType, evt.Type)
		case <-time.After(time.Second):
			req.Fail("handler not called")
		}
	}
	cancel()
	req.NoError(<-done)
}

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	telemetryChan := make(chan event.Event, 10)
	queue := make(chan int, 4)
	queue <- 1
	queue <- 2

	worker := NewChannelCapacityWorker(logs.GetLoggerFromLevel(slog.LevelDebug), telemetryChan, time.Second,
		ChannelGauge("queue", queue), ChannelGauge("not a channel", 42))

	// When
	worker.sample()

	// Then only the real channel is reported
	req.Len(telemetryChan, 1)
	evt := <-telemetryChan
	req.Equal(event.ChannelCapacityType, evt.Type)
	req.Equal(event.ChannelCapacity{ChannelName: "queue", Capacity: 4, Length: 2}, evt.Payload)
}

func TestChannelCapacityWorker_Full_Telemetry_Does_Not_Block(t *testing.T) {
	req := require.New(t)
	telemetryChan := make(chan event.Event)
	worker := NewChannelCapacityWorker(logs.GetLoggerFromLevel(slog.LevelDebug), telemetryChan, time.Second,
		ChannelGauge("queue", make(chan int, 1)))

	done := make(chan struct{})
	go func() {
		worker.sample()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("sample blocked on a full telemetry channel")
	}
}

func TestProcessStatsWorker_Sample(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	registry.EXPECT().Stats().Return(domain.RegistryStats{Connections: 3, Rooms: 1, Memberships: 3}).Times(1)

	worker := NewProcessStatsWorker(logs.GetLoggerFromLevel(slog.LevelDebug), registry, nil, time.Second)
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	// When
	evt, err := worker.sample(p)

	// Then
	req.NoError(err)
	req.Equal(event.PIDTrackerType, evt.Type)
	payload, ok := evt.Payload.(event.ProcessTracker)
	req.True(ok)
	req.Equal(int32(os.Getpid()), payload.PID)
	req.NotEmpty(payload.Status)
	req.Equal(3, payload.Connections)
	req.Positive(payload.Goroutines)
}
