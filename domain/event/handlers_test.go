package event

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestCounter_Concurrent_Increments(t *testing.T) {
	counter := NewCounter()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.Increment(MessagePublishedType)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(1000), counter.Get(MessagePublishedType))
	require.Zero(t, counter.Get(DeliveryDroppedType))
}

func TestDeliveryHandler_Counts_Publications_And_Drops(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewDeliveryHandler(logs.GetLoggerFromLevel(slog.LevelDebug), counter, time.Millisecond)

	// Given two fan-outs, the second one slow and lossy
	handler.Handle(New(MessagePublishedType, MessagePublished{Group: "lobby", Sequence: 1, Targets: 2, Delivered: 2, PersistedAt: time.Now()}))
	handler.Handle(New(MessagePublishedType, MessagePublished{Group: "lobby", Sequence: 2, Targets: 3, Delivered: 1, Dropped: 2, PersistedAt: time.Now().Add(-time.Second)}))

	// Then both are counted with their drops
	req.Equal(uint64(2), counter.Get(MessagePublishedType))
	req.Equal(uint64(2), counter.Get(DeliveryDroppedType))
}

func TestHandlers_Ignore_Foreign_And_Malformed_Events(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	counter := NewCounter()
	delivery := NewDeliveryHandler(log, counter, 0)
	censored := NewCensoredHandler(log)
	restarts := NewWorkerRestartedAfterPanicHandler(log, counter)

	for _, handler := range []Handler{delivery, censored, restarts, NewChannelCapacityHandler(log, 1), NewProcessTrackerHandler(log)} {
		// A payload of the wrong shape under every known type
		for _, typ := range []Type{MessagePublishedType, CensorshipHitType, RestartedAfterPanicType, ChannelCapacityType, PIDTrackerType} {
			handler.Handle(New(typ, "garbage"))
		}
		handler.Handle(New(MessagePersistedType, MessagePersisted{}))
	}

	req.Zero(counter.Get(MessagePublishedType))
	req.Zero(counter.Get(RestartedAfterPanicType))
	req.Zero(censored.Hits("anything"))
}

func TestCensoredHandler_Hits_Per_Word(t *testing.T) {
	req := require.New(t)
	handler := NewCensoredHandler(logs.GetLoggerFromLevel(slog.LevelDebug))

	handler.Handle(New(CensorshipHitType, Censored{Group: "lobby", Words: []string{"badger", "snake"}}))
	handler.Handle(New(CensorshipHitType, Censored{Group: "team", Words: []string{"badger"}}))

	req.Equal(uint64(2), handler.Hits("badger"))
	req.Equal(uint64(1), handler.Hits("snake"))
	req.Zero(handler.Hits("mushroom"))
}

func TestWorkerRestartedAfterPanicHandler_Counts(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewWorkerRestartedAfterPanicHandler(logs.GetLoggerFromLevel(slog.LevelError), counter)

	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "EventFanout"}))
	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "EventFanout"}))
	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "TelemetryWorker"}))

	req.Equal(uint64(3), counter.Get(RestartedAfterPanicType))
	req.Equal(uint64(2), handler.Restarts("EventFanout"))
	req.Equal(uint64(1), handler.Restarts("TelemetryWorker"))
}

func TestChannelCapacityHandler_Saturation(t *testing.T) {
	req := require.New(t)
	handler := NewChannelCapacityHandler(logs.GetLoggerFromLevel(slog.LevelError), 2)
	gauge := func(length int) Event {
		return New(ChannelCapacityType, ChannelCapacity{ChannelName: "events", Capacity: 10, Length: length})
	}

	// Unbuffered channels are not gauged
	handler.Handle(New(ChannelCapacityType, ChannelCapacity{ChannelName: "events", Capacity: 0}))
	req.False(handler.Saturated("events"))

	handler.Handle(gauge(9))
	req.True(handler.Saturated("events"))
	req.False(handler.Saturated("telemetry"))

	handler.Handle(gauge(3))
	req.False(handler.Saturated("events"))
}

func TestProcessTrackerHandler_Keeps_Last_Sample(t *testing.T) {
	req := require.New(t)
	handler := NewProcessTrackerHandler(logs.GetLoggerFromLevel(slog.LevelError))
	req.Zero(handler.Last())

	handler.Handle(New(PIDTrackerType, ProcessTracker{PID: 42, Status: "running", Goroutines: 10}))
	handler.Handle(New(PIDTrackerType, ProcessTracker{PID: 42, Status: "sleeping", Goroutines: 12}))

	req.Equal(ProcessTracker{PID: 42, Status: "sleeping", Goroutines: 12}, handler.Last())
}

func TestProcessState(t *testing.T) {
	require.Equal(t, "running", ProcessState("R"))
	require.Equal(t, "zombie", ProcessState("Z"))
	require.Equal(t, "unknown", ProcessState("?"))
}
