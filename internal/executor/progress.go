package executor

import (
	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/utils"
)

// EventType classifies a progress event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventUnitDone  EventType = "unit_done"
	EventStageDone EventType = "stage_done"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventCompleted EventType = "completed"
)

// Event is one progress emission. PercentComplete is monotone
// non-decreasing for the lifetime of an execution.
type Event struct {
	ExecutionID     string
	Stage           plan.Stage
	Type            EventType
	Unit            string
	PercentComplete float64
	Message         string
}

// Sink receives progress events. Publish calls are serialized per
// execution, so implementations need no locking of their own.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

func (f SinkFunc) Publish(event Event) { f(event) }

// NopSink discards events.
var NopSink Sink = SinkFunc(func(Event) {})

// LogSink writes progress to the leveled logger.
var LogSink Sink = SinkFunc(func(e Event) {
	switch e.Type {
	case EventStarted:
		utils.LogInfo("[%5.1f%%] %s: stage started", e.PercentComplete, e.Stage)
	case EventUnitDone:
		utils.LogVerbose("[%5.1f%%] %s: %s done", e.PercentComplete, e.Stage, e.Unit)
	case EventStageDone:
		utils.LogInfo("[%5.1f%%] %s: stage committed", e.PercentComplete, e.Stage)
	case EventCompleted:
		utils.LogSuccess("[100.0%%] execution %s completed", e.ExecutionID)
	case EventCancelled:
		utils.LogWarning("execution %s cancelled at %s", e.ExecutionID, e.Stage)
	case EventFailed:
		utils.LogError("execution %s failed: %s", e.ExecutionID, e.Message)
	}
})

// tracker computes percent_complete as completed units over total
// units across all stages. Committed stages are pre-counted on resume,
// so a resumed run starts where the interrupted run left off.
type tracker struct {
	total     int
	completed int
	percent   float64
}

func newTracker(total int) *tracker {
	return &tracker{total: total}
}

// unitDone marks one unit finished, successful or not. Failed units
// count as completed work: progress measures dispatch, not success.
func (t *tracker) unitDone() float64 {
	t.completed++
	return t.Percent()
}

func (t *tracker) skip(units int) {
	t.completed += units
}

// Percent returns the high-water percentage, clamped monotone.
func (t *tracker) Percent() float64 {
	if t.total == 0 {
		return 100
	}
	p := float64(t.completed) / float64(t.total) * 100
	if p > t.percent {
		t.percent = p
	}
	return t.percent
}
