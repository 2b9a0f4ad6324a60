package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by the run registry and repository when no run
// exists for an id.
var ErrRunNotFound = errors.New("run not found")

// ConfigurationError is fatal at submission time: the run never starts.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Detail)
}

// DataGapError means the bar stream is missing coverage the run needs. The
// engine fails with the range stated instead of synthesizing bars.
type DataGapError struct {
	Symbol string
	From   time.Time
	To     time.Time
	Detail string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("bar stream gap %s [%s .. %s]: %s",
		e.Symbol, e.From.Format(time.RFC3339), e.To.Format(time.RFC3339), e.Detail)
}

// ResourceLifecycleError means the run's persistence handle became invalid
// mid-run. Structurally the coordinator prevents this by handing each run a
// store whose lifetime it controls, but if storage still fails mid-run the
// run transitions to failed with this diagnostic rather than hanging.
type ResourceLifecycleError struct {
	Op  string
	Err error
}

func (e *ResourceLifecycleError) Error() string {
	return fmt.Sprintf("persistence handle invalid during %s: %v", e.Op, e.Err)
}

func (e *ResourceLifecycleError) Unwrap() error { return e.Err }

// LookAheadError is a fatal simulation defect: a decision read data from a
// bar later than the one being processed.
type LookAheadError struct {
	DecisionBar int
	AccessedBar int
	What        string
}

func (e *LookAheadError) Error() string {
	return fmt.Sprintf("look-ahead violation: %s read bar %d while processing bar %d",
		e.What, e.AccessedBar, e.DecisionBar)
}
