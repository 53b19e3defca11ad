// Package metrics records build pipeline observations.
package metrics

import "time"

// Build outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Recorder defines observability hooks for build passes. NoopRecorder is
// used when metrics are disabled.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string)
	IncBuildError(kind string)
	SetDocuments(n int)
	SetReferences(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncBuildError(string)                       {}
func (NoopRecorder) SetDocuments(int)                           {}
func (NoopRecorder) SetReferences(int)                          {}
