// Package detector runs object detection on frames through an external inference service.
package detector

import (
	"context"
	"errors"
	"time"

	"focusguard-backend/internal/frame"
	"focusguard-backend/internal/proximity"
)

var (
	// ErrSaturated is returned when the pool queue has no free slot.
	ErrSaturated = errors.New("detector: pool saturated")
	// ErrClosed is returned when submitting to a stopped pool.
	ErrClosed = errors.New("detector: pool closed")
)

// Detection holds the labeled boxes found in one frame.
type Detection struct {
	Persons []proximity.Box
	Phones  []proximity.Box
}

// Detector finds persons and phones in a frame. Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, f *frame.Frame) (Detection, error)
}

// Func adapts a function to the Detector interface.
type Func func(ctx context.Context, f *frame.Frame) (Detection, error)

// Detect calls fn.
func (fn Func) Detect(ctx context.Context, f *frame.Frame) (Detection, error) {
	return fn(ctx, f)
}

// Job is one frame awaiting inference. Reply must have room for the result.
type Job struct {
	Ctx   context.Context
	Frame *frame.Frame
	Reply chan<- Result
}

// Result is the outcome of a Job.
type Result struct {
	Frame     *frame.Frame
	Detection Detection
	Err       error
	Latency   time.Duration
}
