package storage

import (
	"github.com/mkerr/briefcast/internal/bulletin"
)

// DefaultProfileID is the profile every installation starts with. It cannot
// be deleted.
const DefaultProfileID = "default"

// SourceConfig is one feed entry inside a profile, in bulletin order.
type SourceConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Custom      bool   `json:"custom"`
}

// Profile is a named, ordered selection of sources.
type Profile struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Sources []SourceConfig `json:"sources"`
}

// SourceSpecs converts the profile's sources into the ordered specs a
// bulletin run consumes.
func (p *Profile) SourceSpecs() []bulletin.SourceSpec {
	specs := make([]bulletin.SourceSpec, 0, len(p.Sources))
	for _, s := range p.Sources {
		specs = append(specs, bulletin.SourceSpec{
			Name:    s.Name,
			FeedURL: s.URL,
			Enabled: s.Enabled,
		})
	}
	return specs
}

// DefaultSources returns the stock short-bulletin feeds seeded into new
// profiles.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:        "ABC News Top Stories",
			URL:         "https://www.abc.net.au/feeds/101858056/podcast.xml",
			Description: "Australian news headlines (60-90 seconds)",
			Enabled:     true,
		},
		{
			Name:        "BBC News 5min",
			URL:         "https://podcast.voice.api.bbci.co.uk/rss/audio/p002vsmz",
			Description: "World news bulletin (5 minutes)",
			Enabled:     true,
		},
		{
			Name:        "SBS News Updates",
			URL:         "https://feeds.sbs.com.au/sbs-news-update",
			Description: "Australian/World news (morning/midday/evening)",
			Enabled:     true,
		},
		{
			Name:        "CNBC Business Update",
			URL:         "https://feeds.simplecast.com/oloBAvaH",
			Description: "US market updates (3-5 minutes)",
			Enabled:     true,
		},
		{
			Name:        "CommSec Market Update",
			URL:         "https://www.omnycontent.com/d/playlist/820f09cf-2ace-4180-a92d-aa4c0008f5fb/7ce30ada-3515-4538-a131-afef0177d550/1b3da022-8454-4155-8336-afef0177d567/podcast.rss",
			Description: "Australian market commentary",
			Enabled:     true,
		},
		{
			Name:        "AI News Daily",
			URL:         "https://ai-news-daily.podigee.io/feed/mp3",
			Description: "AI technology news (5 minutes)",
			Enabled:     true,
		},
	}
}
