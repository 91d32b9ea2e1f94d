package model

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientHistory marks a pair skipped because its series is too short.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrFitFailure wraps any error raised while fitting a model.
	ErrFitFailure = errors.New("model fit failed")
	// ErrFitTimeout marks a fit abandoned after the configured timeout.
	ErrFitTimeout = errors.New("fit timed out")
	// ErrStoreWrite wraps failures writing to the relational store.
	ErrStoreWrite = errors.New("store write failed")
	// ErrStoreRead wraps failures reading a series back from the relational store.
	ErrStoreRead = errors.New("store read failed")
	// ErrNotificationDelivery wraps notifier transport failures.
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

// RunStage is a state of the refresh pipeline.
type RunStage string

const (
	StageNotStarted  RunStage = "not_started"
	StageRollingUp   RunStage = "rolling_up"
	StageForecasting RunStage = "forecasting"
	StageNotifying   RunStage = "notifying"
	StageDone        RunStage = "done"
	StageFailed      RunStage = "failed"
)

// PairStatus is the result of forecasting one (region, metric) pair.
type PairStatus string

const (
	PairSucceeded   PairStatus = "succeeded"
	PairSkipped     PairStatus = "skipped"
	PairFitFailed   PairStatus = "fit_failed"
	PairFitTimedOut PairStatus = "fit_timed_out"
	PairStoreFailed PairStatus = "store_failed"
	PairReadFailed  PairStatus = "read_failed"
)

// NotificationKind classifies outgoing notifications.
type NotificationKind string

const (
	NotificationAnomaly NotificationKind = "anomaly"
	NotificationFailure NotificationKind = "failure"
	NotificationSummary NotificationKind = "summary"
)

// Notification is a message for the operator channel.
type Notification struct {
	Kind    NotificationKind
	Subject string
	Body    string
}

// PairOutcome records what happened to one (region, metric) pair during a run,
// including the notifications it produced. Sending them is the caller's job.
type PairOutcome struct {
	Region        Region
	Metric        Metric
	Status        PairStatus
	HistoryLen    int
	Points        []*ForecastPoint
	Notifications []Notification
	Err           error
}

// RunReport summarizes one pipeline invocation.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []RunStage
	RolledUp   int
	Outcomes   []PairOutcome
	Err        error
}

// Stage is the last stage the run reached.
func (r *RunReport) Stage() RunStage {
	if len(r.Stages) == 0 {
		return StageNotStarted
	}
	return r.Stages[len(r.Stages)-1]
}

// Count returns the number of outcomes with the given status.
func (r *RunReport) Count(status PairStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Succeeded returns the outcomes whose forecasts were persisted.
func (r *RunReport) Succeeded() []PairOutcome {
	out := make([]PairOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == PairSucceeded {
			out = append(out, o)
		}
	}
	return out
}

// Failed reports whether the run should exit non-zero: the run aborted, or some
// pair could not be read from or written to the store.
func (r *RunReport) Failed() bool {
	return r.Stage() == StageFailed || r.Count(PairStoreFailed) > 0 || r.Count(PairReadFailed) > 0
}
