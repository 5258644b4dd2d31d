package event

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	PIDTrackerType          Type = "PID_TRACKER"
)

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

// ProcessTracker samples the server process itself.
type ProcessTracker struct {
	PID         int32
	Status      string
	Cpu         float64
	Ram         float32
	Goroutines  int
	Connections int
}

var processStates = map[string]string{
	"R": "running",
	"S": "sleeping",
	"T": "stopped",
	"I": "idle",
	"Z": "zombie",
	"W": "waiting",
	"L": "locked",
}

// ProcessState spells out the one letter state gopsutil reports.
func ProcessState(letter string) string {
	if state, ok := processStates[letter]; ok {
		return state
	}
	return "unknown"
}
