package config

import (
	"os"
	"time"
)

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	tmp := os.TempDir()
	return &Config{
		Server: ServerConfig{
			Addr:         ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Feed: FeedConfig{
			HTTPTimeout: 5 * time.Second,
			UserAgent:   "briefcast-test/1.0",
		},
		Download: DownloadConfig{
			Timeout:  5 * time.Second,
			MinBytes: 16,
		},
		Audio: AudioConfig{
			SilenceMs:  2000,
			Format:     "mp3",
			SampleRate: 44100,
			Channels:   2,
			Bitrate:    "128k",
			FFmpegPath: "ffmpeg",
		},
		Storage: StorageConfig{
			Timeout:   1 * time.Second,
			OutputDir: tmp,
			WorkDir:   tmp,
		},
		Email: EmailConfig{
			SMTPServer: "localhost",
			SMTPPort:   2525,
			SenderName: "briefcast-test",
			MaxSizeMB:  25,
		},
	}
}
