package runtime

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain/event"
	"quorum/internal"
	"quorum/moderation"
	"quorum/runtime/workers"
	"quorum/services"
	"quorum/sink"
	"strings"
	"sync/atomic"
)

//go:embed censored/*
var censoredFolder embed.FS

// Orchestrator wires the chat core: the registry and router in memory, the
// ingest pipeline in front of the stores, and the supervised workers behind it.
// Transports are built on top of what it exposes.
type Orchestrator struct {
	log        *slog.Logger
	config     internal.Config
	supervisor *workers.Supervisor
	registry   *Registry
	router     *Router
	sequencer  *Sequencer
	membership *services.MembershipService
	ingest     *services.IngestService
	index      contract.ISearchIndex
	indexSink  *sink.IndexSink
	fanout     *workers.EventFanout
	events     chan event.Event
	telemetry  chan event.Event
	counter    *event.Counter
	censored   *event.CensoredHandler
	process    *event.ProcessTrackerHandler
	started    atomic.Bool
	done       chan struct{}
}

// Stats is a snapshot of the core for operators.
type Stats struct {
	Connections    int     `json:"connections"`
	Rooms          int     `json:"rooms"`
	Memberships    int     `json:"memberships"`
	ActiveGroups   int     `json:"active_groups"`
	Published      uint64  `json:"published"`
	Dropped        uint64  `json:"dropped"`
	PendingIndex   int     `json:"pending_index"`
	QueuedEvents   int     `json:"queued_events"`
	WorkerRestarts uint64  `json:"worker_restarts"`
	Goroutines     int     `json:"goroutines"`
	CPUPercent     float64 `json:"cpu_percent"`
	RAMPercent     float32 `json:"ram_percent"`
}

func NewOrchestrator(
	log *slog.Logger,
	config internal.Config,
	messages contract.IMessageRepository,
	memberships contract.IMembershipRepository,
	index contract.ISearchIndex,
) (*Orchestrator, error) {
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := prepareModeration(log, charReplacement)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:       log,
		config:    config,
		registry:  NewRegistry(),
		sequencer: NewSequencer(),
		index:     index,
		events:    make(chan event.Event, config.IndexBufferSize),
		telemetry: make(chan event.Event, config.TelemetryBufferSize),
		counter:   event.NewCounter(),
		censored:  event.NewCensoredHandler(log),
		process:   event.NewProcessTrackerHandler(log),
		done:      make(chan struct{}),
	}
	o.membership = services.NewMembershipService(log, memberships, config.PublicGroupIDs())
	o.router = NewRouter(log, o.registry, o.membership)
	o.membership.SetRevoker(o.router)
	o.ingest = services.NewIngestService(log, messages, o.router, o.sequencer, moderator, o.events,
		config.MaxMessageSize, config.MaxAttachmentBytes)
	o.indexSink = sink.NewIndexSink(index, log, config.IndexBatchSize, config.IndexBufferTimeout, config.SinkTimeout)
	o.fanout = workers.NewEventFanout(log, o.events, o.telemetry, config.SinkTimeout, o.indexSink)
	o.supervisor = workers.NewSupervisor(log, o.telemetry, config.RestartInterval)
	return o, nil
}

// prepareModeration loads the embedded dictionaries and builds the automaton.
func prepareModeration(log *slog.Logger, charReplacement rune) (*moderation.Moderator, error) {
	data, err := NewCensoredLoader(censoredFolder).LoadAll("censored")
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(data.Languages), strings.Join(data.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, charReplacement, log)
}

// Start runs the workers until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	defer close(o.done)

	o.supervisor.Add(
		o.fanout,
		workers.NewTelemetryWorker(o.log, o.telemetry,
			event.NewDeliveryHandler(o.log, o.counter, o.config.LatencyThreshold),
			o.censored,
			event.NewChannelCapacityHandler(o.log, o.config.LowCapacityThreshold),
			o.process,
			event.NewWorkerRestartedAfterPanicHandler(o.log, o.counter),
		),
		workers.NewChannelCapacityWorker(o.log, o.telemetry, o.config.MetricInterval,
			workers.ChannelGauge("events", o.events),
			workers.ChannelGauge("telemetry", o.telemetry),
		),
		workers.NewProcessStatsWorker(o.log, o.registry, o.telemetry, o.config.MetricInterval),
	)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop halts the workers, hands the events still queued to the sinks and
// flushes the last search batch.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	if o.started.Load() {
		select {
		case <-o.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	drained := 0
drain:
	for {
		select {
		case evt := <-o.events:
			o.fanout.Fanout(ctx, evt)
			drained++
		default:
			break drain
		}
	}
	if drained > 0 {
		o.log.Debug("Queued events handed to sinks", "count", drained)
	}
	return o.indexSink.Flush(ctx)
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Router() contract.IRouter { return o.router }

func (o *Orchestrator) Ingest() contract.IIngestService { return o.ingest }

func (o *Orchestrator) Membership() contract.IMembershipService { return o.membership }

func (o *Orchestrator) Search() contract.ISearchIndex { return o.index }

// CensoredHits is how many times word was masked since start.
func (o *Orchestrator) CensoredHits(word string) uint64 { return o.censored.Hits(word) }

func (o *Orchestrator) Stats() Stats {
	registry := o.registry.Stats()
	process := o.process.Last()
	return Stats{
		Connections:    registry.Connections,
		Rooms:          registry.Rooms,
		Memberships:    registry.Memberships,
		ActiveGroups:   o.sequencer.Active(),
		Published:      o.counter.Get(event.MessagePublishedType),
		Dropped:        o.counter.Get(event.DeliveryDroppedType),
		PendingIndex:   o.indexSink.Pending(),
		QueuedEvents:   len(o.events),
		WorkerRestarts: o.counter.Get(event.RestartedAfterPanicType),
		Goroutines:     process.Goroutines,
		CPUPercent:     process.Cpu,
		RAMPercent:     process.Ram,
	}
}
