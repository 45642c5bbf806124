package feed

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/mkerr/briefcast/internal/config"
)

// Episode is the latest audio entry resolved from a feed.
type Episode struct {
	EnclosureURL    string
	Title           string
	DurationSeconds float64
}

// Resolver fetches an RSS/Atom feed and extracts the newest entry's audio
// enclosure. Feeds list newest-first by convention; the first item in document
// order wins and date fields are deliberately not consulted.
type Resolver struct {
	client *http.Client
	parser *gofeed.Parser
	cfg    config.FeedConfig
}

func NewResolver(cfg config.FeedConfig) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		parser: gofeed.NewParser(),
		cfg:    cfg,
	}
}

// Resolve returns the latest episode of the feed at feedURL.
func (r *Resolver) Resolve(ctx context.Context, feedURL string) (*Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FeedError{URL: feedURL, Err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &FeedError{URL: feedURL, Err: fmt.Errorf("fetching feed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FeedError{URL: feedURL, Err: fmt.Errorf("HTTP error: %d", resp.StatusCode)}
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, &FeedError{URL: feedURL, Err: fmt.Errorf("parsing feed: %w", err)}
	}

	if len(parsed.Items) == 0 {
		return nil, &FeedError{URL: feedURL, Err: fmt.Errorf("feed has no entries")}
	}

	latest := parsed.Items[0]

	enclosureURL := selectAudioEnclosure(latest)
	if enclosureURL == "" {
		return nil, &FeedError{URL: feedURL, Err: ErrNoAudio}
	}

	return &Episode{
		EnclosureURL:    enclosureURL,
		Title:           latest.Title,
		DurationSeconds: itunesDurationSeconds(latest),
	}, nil
}

// selectAudioEnclosure picks the first enclosure whose declared type is
// audio, falling back to a recognized file extension when the type is
// absent or generic.
func selectAudioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
		if enc.Type == "" || enc.Type == "application/octet-stream" {
			if hasAudioExtension(enc.URL) {
				return enc.URL
			}
		}
	}
	return ""
}

var audioExtensions = map[string]bool{
	".mp3": true,
	".m4a": true,
	".wav": true,
	".ogg": true,
}

func hasAudioExtension(rawURL string) bool {
	// Strip the query string before inspecting the extension.
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return audioExtensions[strings.ToLower(path.Ext(rawURL))]
}

// itunesDurationSeconds parses the itunes:duration element, which providers
// format as plain seconds, MM:SS, or HH:MM:SS. Returns 0 when absent or
// unparseable.
func itunesDurationSeconds(item *gofeed.Item) float64 {
	if item.ITunesExt == nil || item.ITunesExt.Duration == "" {
		return 0
	}

	parts := strings.Split(strings.TrimSpace(item.ITunesExt.Duration), ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	for _, part := range parts {
		var n float64
		if _, err := fmt.Sscanf(part, "%f", &n); err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
