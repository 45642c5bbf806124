package bulletin

import (
	"errors"
	"time"
)

// SourceSpec is one configured news source in the order it should appear in
// the combined bulletin. Immutable during a run.
type SourceSpec struct {
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
	Enabled bool   `json:"enabled"`
}

// FetchResult is the outcome of resolving and downloading one source.
// Exactly one of (LocalPath) and (Reason) is populated.
type FetchResult struct {
	SourceName      string
	LocalPath       string
	DurationSeconds float64
	Reason          string
}

// OK reports whether this result is a success.
func (r FetchResult) OK() bool {
	return r.Reason == ""
}

// FailedSource records one failed source and its human-readable reason.
type FailedSource struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result is the artifact of one generation run.
type Result struct {
	ID                   string         `json:"id"`
	ProfileID            string         `json:"profile_id,omitempty"`
	OutputPath           string         `json:"output_path"`
	SourcesAttempted     []string       `json:"sources_attempted"`
	SourcesSucceeded     []string       `json:"sources_succeeded"`
	SourcesFailed        []FailedSource `json:"sources_failed"`
	TotalDurationSeconds float64        `json:"total_duration_seconds"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

// Run-fatal conditions. Per-source feed and download failures never surface
// as errors; they become FetchResult entries instead.
var (
	ErrNoSourcesConfigured = errors.New("no sources configured")
	ErrNoSourcesSucceeded  = errors.New("no sources succeeded")
)

// Stage identifies a progress event for an external presentation layer.
// Observational only; never influences control flow.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageProcessing  Stage = "processing"
	StageComplete    Stage = "complete"
	StageWarning     Stage = "warning"
	StageError       Stage = "error"
)

// ProgressFunc receives ordered progress events during a run.
type ProgressFunc func(stage Stage, message string)
