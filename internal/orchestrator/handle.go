package orchestrator

import (
	"sync"

	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/sink"
)

// Reasons an Init call finished the way it did.
const (
	ReasonNoEnvironment   = "no_environment"
	ReasonAlreadyDetected = "already_detected"
	ReasonUnchanged       = "unchanged"
	ReasonDelivered       = "delivered"
	ReasonNotDelivered    = "not_delivered"
	ReasonFailed          = "failed"
)

// Outcome describes how a scheduled detection ended. Delivery is the sink
// result when a send was attempted; Delivered is true only when it was sent.
type Outcome struct {
	Reason    string
	Traits    scoring.Traits
	Ran       bool
	Changed   bool
	Delivered bool
	Delivery  sink.Result
}

// Handle tracks one Init call. A scheduled run fires once or never, so
// Done may never close if the host drops the callback.
type Handle struct {
	done      chan struct{}
	once      sync.Once
	scheduled bool
	outcome   Outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) finish(o Outcome) {
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
	})
}

// Scheduled reports whether Init handed a run to the scheduler.
func (h *Handle) Scheduled() bool {
	return h.scheduled
}

// Done is closed when the run finishes or Init decided not to schedule.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until Done and returns the outcome.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}
