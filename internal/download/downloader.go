package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mkerr/briefcast/internal/config"
	"github.com/mkerr/briefcast/internal/validation"
)

// DownloadError wraps any failure to fetch an enclosure: network error, bad
// status, wrong content type, or an empty body.
type DownloadError struct {
	Source string
	Err    error
}

func (e *DownloadError) Error() string {
	return "download " + e.Source + ": " + e.Err.Error()
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Downloader fetches audio enclosures to local files. A single attempt per
// call; retries are the caller's decision and deliberately not made here.
type Downloader struct {
	client *http.Client
	cfg    config.DownloadConfig
}

func NewDownloader(cfg config.DownloadConfig) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Download streams the enclosure at enclosureURL into destDir. The filename
// is derived from sourceName so one run never collides with itself.
func (d *Downloader) Download(ctx context.Context, enclosureURL, destDir, sourceName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, enclosureURL, nil)
	if err != nil {
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("fetching enclosure: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("HTTP error: %d", resp.StatusCode)}
	}

	if ct := resp.Header.Get("Content-Type"); !isAudioContentType(ct) {
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("unexpected content type %q", ct)}
	}

	destPath := filepath.Join(destDir, validation.SanitizeSourceName(sourceName)+extensionFor(enclosureURL))

	f, err := os.Create(destPath)
	if err != nil {
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("creating file: %w", err)}
	}

	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("writing file: %w", err)}
	}

	if written < d.cfg.MinBytes {
		os.Remove(destPath)
		return "", &DownloadError{Source: sourceName, Err: fmt.Errorf("body too small: %d bytes", written)}
	}

	return destPath, nil
}

// isAudioContentType accepts audio types and the absent/generic types some
// CDNs serve for enclosures.
func isAudioContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	return strings.HasPrefix(ct, "audio/") ||
		ct == "application/octet-stream" ||
		ct == "binary/octet-stream"
}

// extensionFor derives the local file extension from the enclosure URL,
// defaulting to .mp3 when the URL gives nothing recognizable.
func extensionFor(enclosureURL string) string {
	if i := strings.IndexByte(enclosureURL, '?'); i >= 0 {
		enclosureURL = enclosureURL[:i]
	}
	switch ext := strings.ToLower(path.Ext(enclosureURL)); ext {
	case ".mp3", ".m4a", ".wav", ".ogg", ".aac":
		return ext
	default:
		return ".mp3"
	}
}
