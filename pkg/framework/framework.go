// Package framework provides the run loop the node's components hang off:
// priority-leveled controllers driven by discrete events, every handler
// running to completion. It stands in for interrupt-driven scheduling on a
// hosted runtime: two logical priority bands suffice, a high band for
// completion-event handling and a low band for background work.
package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Event is a discrete occurrence posted to the loop, consumed by
// controllers during an iteration.
type Event interface {
	// NewEvent creates an empty event of the same type.
	NewEvent() Event
}

// Controller is one component's step function, invoked once per loop
// iteration at its registered priority level. It must not block; it runs
// to completion and returns.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// TimeSource provides the time of the current iteration.
type TimeSource interface {
	Time() time.Time
}

// ControlContext provides the context of the current iteration.
type ControlContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Events retrieves the events collected when this iteration started.
	Events() EventStore
	// PostRun injects one-shot post-run hooks at the current level.
	PostRun(hooks ...Controller)

	LoopControl
}

// PriorityLevels is the total number of priority levels.
const PriorityLevels int = 8

// Priority levels. The high band reacts to completion events; the low
// band drains queues and handles commands.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 1
	PrLvNormal int = 4
	PrLvLow    int = 6
	PrLvIdle   int = PriorityLevels - 1

	// PrLvProcess hosts the signal processing stage.
	PrLvProcess = PrLvHigh
	// PrLvDispatch hosts the command dispatcher.
	PrLvDispatch = PrLvNormal
	// PrLvDrain hosts the transport queue drain.
	PrLvDrain = PrLvLow
	// PrLvReport hosts periodic reporting.
	PrLvReport = PrLvIdle
)

// LoopControl exposes access to the running loop.
type LoopControl interface {
	// PreRunAt injects one-shot pre-run hooks at a priority level.
	PreRunAt(priorityLevel int, controllers ...Controller)
	// PostRunAt injects one-shot post-run hooks at a priority level.
	PostRunAt(priorityLevel int, controllers ...Controller)
	// PostEvent enqueues an event for the next iteration.
	PostEvent(Event)
	// TriggerNext schedules the next iteration immediately, the hosted
	// analogue of raising a pending interrupt.
	TriggerNext()
}

// EventStore provides read/write access to pending events.
type EventStore interface {
	// ProcessEvents walks all pending events with a processor.
	ProcessEvents(EventProcessor)

	EventAppender
}

// EventAppender appends events for the next processing cycle.
type EventAppender interface {
	AddEvents(events ...Event)
}

// EventProcessor is used by EventStore to examine events.
type EventProcessor interface {
	ProcessEvent(EventProcessingContext)
}

// ProcessEventFunc is the func form of EventProcessor.
type ProcessEventFunc func(EventProcessingContext)

// ProcessEvent implements EventProcessor.
func (f ProcessEventFunc) ProcessEvent(ec EventProcessingContext) {
	f(ec)
}

// EventProcessingContext provides context for the event being examined.
type EventProcessingContext interface {
	// CurrentEvent gets the event being examined.
	CurrentEvent() Event
	// EventTaken marks the event consumed, removing it from the store.
	EventTaken()
	// StopProcessing stops examining further events.
	StopProcessing()

	EventAppender
}
