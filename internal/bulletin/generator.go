package bulletin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/feed"
	"github.com/mkerr/briefcast/internal/metrics"
)

// EnclosureResolver resolves a feed URL to its latest audio episode.
type EnclosureResolver interface {
	Resolve(ctx context.Context, feedURL string) (*feed.Episode, error)
}

// EnclosureDownloader fetches an enclosure URL to a local file in destDir.
type EnclosureDownloader interface {
	Download(ctx context.Context, enclosureURL, destDir, sourceName string) (string, error)
}

// Concatenator joins ordered clips into one output file and reports the
// total duration in seconds.
type Concatenator interface {
	Concatenate(ctx context.Context, orderedPaths []string, outputPath string) (float64, error)
}

// Generator drives one bulletin run: resolve and download each enabled
// source in configured order, tolerate per-source failures, concatenate the
// successes, clean up, and emit a Result.
type Generator struct {
	resolver   EnclosureResolver
	downloader EnclosureDownloader
	concat     Concatenator
	workDir    string
	logger     *zap.Logger
	progress   ProgressFunc
}

func NewGenerator(resolver EnclosureResolver, downloader EnclosureDownloader, concat Concatenator, workDir string, logger *zap.Logger) *Generator {
	return &Generator{
		resolver:   resolver,
		downloader: downloader,
		concat:     concat,
		workDir:    workDir,
		logger:     logger.Named("bulletin"),
	}
}

// SetProgress installs an optional progress sink for run events.
func (g *Generator) SetProgress(fn ProgressFunc) {
	g.progress = fn
}

func (g *Generator) emit(stage Stage, format string, args ...any) {
	if g.progress != nil {
		g.progress(stage, fmt.Sprintf(format, args...))
	}
}

// Generate runs the pipeline for the given ordered sources and writes the
// combined file to outputPath. Sources fetch strictly sequentially in
// configured order; concatenation order equals configured order.
func (g *Generator) Generate(ctx context.Context, sources []SourceSpec, outputPath string) (*Result, error) {
	started := time.Now()

	enabled := make([]SourceSpec, 0, len(sources))
	for _, s := range sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		metrics.RunsTotal.WithLabelValues("no_sources").Inc()
		return nil, ErrNoSourcesConfigured
	}

	runID := uuid.New().String()
	logger := g.logger.With(zap.String("run", runID))
	logger.Info("starting bulletin run", zap.Int("sources", len(enabled)))

	if err := os.MkdirAll(g.workDir, 0o755); err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	tempDir, err := os.MkdirTemp(g.workDir, "run-*")
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	// Downloaded files never outlive the run, whatever the outcome.
	defer os.RemoveAll(tempDir)

	results := make([]FetchResult, 0, len(enabled))
	for _, src := range enabled {
		results = append(results, g.fetchOne(ctx, src, tempDir, logger))
	}

	result := &Result{
		ID:               runID,
		SourcesAttempted: make([]string, 0, len(enabled)),
		SourcesSucceeded: []string{},
		SourcesFailed:    []FailedSource{},
		GeneratedAt:      time.Now().UTC(),
	}

	var clipPaths []string
	for _, r := range results {
		result.SourcesAttempted = append(result.SourcesAttempted, r.SourceName)
		if r.OK() {
			result.SourcesSucceeded = append(result.SourcesSucceeded, r.SourceName)
			clipPaths = append(clipPaths, r.LocalPath)
		} else {
			result.SourcesFailed = append(result.SourcesFailed, FailedSource{Name: r.SourceName, Reason: r.Reason})
		}
	}

	if len(clipPaths) == 0 {
		logger.Warn("all sources failed")
		g.emit(StageError, "no audio files were downloaded successfully")
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, ErrNoSourcesSucceeded
	}

	g.emit(StageProcessing, "combining %d audio files", len(clipPaths))
	logger.Info("concatenating clips", zap.Int("clips", len(clipPaths)))

	duration, err := g.concat.Concatenate(ctx, clipPaths, outputPath)
	if err != nil {
		logger.Error("concatenation failed", zap.Error(err))
		g.emit(StageError, "failed to combine audio files")
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result.OutputPath = outputPath
	result.TotalDurationSeconds = duration

	outcome := "success"
	if len(result.SourcesFailed) > 0 {
		outcome = "partial"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	logger.Info("bulletin ready",
		zap.String("output", outputPath),
		zap.Float64("seconds", duration),
		zap.Strings("succeeded", result.SourcesSucceeded),
		zap.Int("failed", len(result.SourcesFailed)),
	)
	g.emit(StageComplete, "bulletin ready: %s", outputPath)

	return result, nil
}

// fetchOne resolves and downloads a single source. Failures are converted to
// a FetchResult, never propagated; one bad feed must not abort the run.
func (g *Generator) fetchOne(ctx context.Context, src SourceSpec, tempDir string, logger *zap.Logger) FetchResult {
	g.emit(StageDownloading, "fetching latest bulletin from %s", src.Name)

	episode, err := g.resolver.Resolve(ctx, src.FeedURL)
	if err != nil {
		logger.Warn("resolve failed", zap.String("source", src.Name), zap.Error(err))
		g.emit(StageWarning, "%s: %s", src.Name, failureReason(err))
		metrics.SourceFailuresTotal.WithLabelValues(src.Name).Inc()
		return FetchResult{SourceName: src.Name, Reason: failureReason(err)}
	}

	localPath, err := g.downloader.Download(ctx, episode.EnclosureURL, tempDir, src.Name)
	if err != nil {
		logger.Warn("download failed", zap.String("source", src.Name), zap.Error(err))
		g.emit(StageWarning, "%s: %s", src.Name, failureReason(err))
		metrics.SourceFailuresTotal.WithLabelValues(src.Name).Inc()
		return FetchResult{SourceName: src.Name, Reason: failureReason(err)}
	}

	logger.Info("downloaded clip",
		zap.String("source", src.Name),
		zap.String("title", episode.Title),
	)

	return FetchResult{
		SourceName:      src.Name,
		LocalPath:       localPath,
		DurationSeconds: episode.DurationSeconds,
	}
}

// failureReason produces the short, user-safe diagnostic recorded against a
// failed source.
func failureReason(err error) string {
	if errors.Is(err, feed.ErrNoAudio) {
		return "no audio enclosure found"
	}
	return err.Error()
}
