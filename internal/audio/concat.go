package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/config"
)

// ProcessingError wraps a decode or encode failure. Fatal to a bulletin run:
// the combined file is all-or-nothing.
type ProcessingError struct {
	Path string
	Err  error
}

func (e *ProcessingError) Error() string {
	if e.Path != "" {
		return "audio processing " + filepath.Base(e.Path) + ": " + e.Err.Error()
	}
	return "audio processing: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Concatenator joins downloaded clips into one file. Each input is decoded
// to interleaved PCM s16le at a fixed sample rate and channel layout via an
// ffmpeg subprocess, silence gaps are spliced in as zeroed samples, and the
// combined buffer is encoded back out in a single ffmpeg pass.
type Concatenator struct {
	cfg    config.AudioConfig
	logger *zap.Logger
}

func NewConcatenator(cfg config.AudioConfig, logger *zap.Logger) *Concatenator {
	return &Concatenator{cfg: cfg, logger: logger.Named("audio")}
}

// Concatenate decodes orderedPaths in order, inserts the configured silence
// between consecutive clips, and writes the encoded result to outputPath
// atomically. Returns the total output duration in seconds.
func (c *Concatenator) Concatenate(ctx context.Context, orderedPaths []string, outputPath string) (float64, error) {
	if len(orderedPaths) == 0 {
		return 0, &ProcessingError{Err: fmt.Errorf("no input files")}
	}

	gap := silencePCM(c.cfg.SilenceMs, c.cfg.SampleRate, c.cfg.Channels)

	var combined bytes.Buffer
	for i, p := range orderedPaths {
		if i > 0 {
			combined.Write(gap)
		}

		pcm, err := c.decode(ctx, p)
		if err != nil {
			return 0, err
		}
		c.logger.Debug("decoded clip",
			zap.String("path", filepath.Base(p)),
			zap.Float64("seconds", pcmDurationSeconds(len(pcm), c.cfg.SampleRate, c.cfg.Channels)),
		)
		combined.Write(pcm)
	}

	duration := pcmDurationSeconds(combined.Len(), c.cfg.SampleRate, c.cfg.Channels)

	if err := c.encode(ctx, &combined, outputPath); err != nil {
		return 0, err
	}

	c.logger.Info("bulletin encoded",
		zap.String("output", filepath.Base(outputPath)),
		zap.Int("clips", len(orderedPaths)),
		zap.Float64("seconds", duration),
	)

	return duration, nil
}

// decode converts one input file to PCM s16le at the target rate and layout.
func (c *Concatenator) decode(ctx context.Context, inputPath string) ([]byte, error) {
	args := []string{
		"-nostdin",
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProcessingError{Path: inputPath, Err: fmt.Errorf("decode: %v: %s", err, firstLine(stderr.String()))}
	}

	if stdout.Len() == 0 {
		return nil, &ProcessingError{Path: inputPath, Err: fmt.Errorf("decode produced no samples")}
	}

	return stdout.Bytes(), nil
}

// encode writes the raw PCM stream to outputPath in the configured container.
// The file is written to a temp path in the same directory and renamed into
// place so a partial file is never observable at outputPath.
func (c *Concatenator) encode(ctx context.Context, pcm *bytes.Buffer, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return &ProcessingError{Path: outputPath, Err: fmt.Errorf("creating output directory: %w", err)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".briefcast-*."+c.cfg.Format)
	if err != nil {
		return &ProcessingError{Path: outputPath, Err: fmt.Errorf("creating temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := []string{
		"-nostdin",
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-i", "pipe:0",
		"-b:a", c.cfg.Bitrate,
		"-f", muxerFor(c.cfg.Format),
		tmpPath,
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	cmd.Stdin = pcm
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		return &ProcessingError{Path: outputPath, Err: fmt.Errorf("encode: %v: %s", err, firstLine(stderr.String()))}
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return &ProcessingError{Path: outputPath, Err: fmt.Errorf("moving output into place: %w", err)}
	}

	return nil
}

// silencePCM returns zeroed s16le samples covering durationMs at the given
// rate and channel count.
func silencePCM(durationMs, sampleRate, channels int) []byte {
	samples := durationMs * sampleRate / 1000
	return make([]byte, samples*channels*2)
}

// pcmDurationSeconds converts a byte count of s16le PCM to seconds.
func pcmDurationSeconds(byteLen, sampleRate, channels int) float64 {
	if sampleRate == 0 || channels == 0 {
		return 0
	}
	return float64(byteLen) / float64(sampleRate*channels*2)
}

// muxerFor maps the user-facing format name to the ffmpeg muxer.
func muxerFor(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "wav"
	case "ogg":
		return "ogg"
	case "m4a":
		return "ipod"
	default:
		return "mp3"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
