package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Download DownloadConfig `mapstructure:"download"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Email    EmailConfig    `mapstructure:"email"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type FeedConfig struct {
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type DownloadConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MinBytes int64         `mapstructure:"min_bytes"`
}

type AudioConfig struct {
	SilenceMs  int    `mapstructure:"silence_ms"`
	Format     string `mapstructure:"format"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	Bitrate    string `mapstructure:"bitrate"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
}

type StorageConfig struct {
	DatabasePath string        `mapstructure:"database_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SearchIndex  string        `mapstructure:"search_index"`
	OutputDir    string        `mapstructure:"output_dir"`
	WorkDir      string        `mapstructure:"work_dir"`
}

// EmailConfig holds non-secret mail settings. SMTP credentials come from the
// environment (SMTP_USERNAME, SMTP_PASSWORD), never from the config file.
type EmailConfig struct {
	SMTPServer string `mapstructure:"smtp_server"`
	SMTPPort   int    `mapstructure:"smtp_port"`
	SenderName string `mapstructure:"sender_name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".briefcast")

	return &Config{
		Server: ServerConfig{
			Addr:         ":5000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
			CORSOrigins:  []string{"*"},
		},
		Feed: FeedConfig{
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "briefcast/1.0 (news bulletin aggregator)",
		},
		Download: DownloadConfig{
			Timeout:  60 * time.Second,
			MinBytes: 1024,
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
			DatabasePath: filepath.Join(dataDir, "briefcast.db"),
			Timeout:      1 * time.Second,
			SearchIndex:  filepath.Join(dataDir, "index.bleve"),
			OutputDir:    filepath.Join(dataDir, "output"),
			WorkDir:      filepath.Join(dataDir, "tmp"),
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
			SenderName: "News Bulletin Aggregator",
			MaxSizeMB:  25,
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("server", cfg.Server)
	v.SetDefault("feed", cfg.Feed)
	v.SetDefault("download", cfg.Download)
	v.SetDefault("audio", cfg.Audio)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("email", cfg.Email)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "briefcast")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BRIEFCAST")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath)
	cfg.Storage.SearchIndex = expandPath(cfg.Storage.SearchIndex)
	cfg.Storage.OutputDir = expandPath(cfg.Storage.OutputDir)
	cfg.Storage.WorkDir = expandPath(cfg.Storage.WorkDir)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Convert durations to strings for TOML readability
	serverCfg := map[string]interface{}{
		"addr":          config.Server.Addr,
		"read_timeout":  config.Server.ReadTimeout.String(),
		"write_timeout": config.Server.WriteTimeout.String(),
		"cors_origins":  config.Server.CORSOrigins,
	}

	feedCfg := map[string]interface{}{
		"http_timeout": config.Feed.HTTPTimeout.String(),
		"user_agent":   config.Feed.UserAgent,
	}

	downloadCfg := map[string]interface{}{
		"timeout":   config.Download.Timeout.String(),
		"min_bytes": config.Download.MinBytes,
	}

	storageCfg := map[string]interface{}{
		"database_path": config.Storage.DatabasePath,
		"timeout":       config.Storage.Timeout.String(),
		"search_index":  config.Storage.SearchIndex,
		"output_dir":    config.Storage.OutputDir,
		"work_dir":      config.Storage.WorkDir,
	}

	audioCfg := map[string]interface{}{
		"silence_ms":  config.Audio.SilenceMs,
		"format":      config.Audio.Format,
		"sample_rate": config.Audio.SampleRate,
		"channels":    config.Audio.Channels,
		"bitrate":     config.Audio.Bitrate,
		"ffmpeg_path": config.Audio.FFmpegPath,
	}

	emailCfg := map[string]interface{}{
		"smtp_server": config.Email.SMTPServer,
		"smtp_port":   config.Email.SMTPPort,
		"sender_name": config.Email.SenderName,
		"max_size_mb": config.Email.MaxSizeMB,
	}

	v.Set("server", serverCfg)
	v.Set("feed", feedCfg)
	v.Set("download", downloadCfg)
	v.Set("audio", audioCfg)
	v.Set("storage", storageCfg)
	v.Set("email", emailCfg)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
