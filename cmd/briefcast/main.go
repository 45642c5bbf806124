package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/audio"
	"github.com/mkerr/briefcast/internal/bulletin"
	"github.com/mkerr/briefcast/internal/config"
	"github.com/mkerr/briefcast/internal/download"
	"github.com/mkerr/briefcast/internal/feed"
	"github.com/mkerr/briefcast/internal/mail"
	"github.com/mkerr/briefcast/internal/search"
	"github.com/mkerr/briefcast/internal/server"
	"github.com/mkerr/briefcast/internal/storage"
)

// Version is the version of the application, set at build time
var Version = "dev"

func main() {
	var (
		configPath     = flag.String("config", "", "Path to configuration file")
		serve          = flag.Bool("serve", false, "Run the web API server")
		addr           = flag.String("addr", "", "Listen address for the server (overrides config)")
		profileID      = flag.String("profile", "", "Profile to generate a bulletin for (default: active profile)")
		outputDir      = flag.String("output-dir", "", "Directory for generated bulletins (overrides config)")
		devMode        = flag.Bool("dev", false, "Allow localhost and private feed URLs")
		generateConfig = flag.Bool("generate-config", false, "Generate default config file")
		version        = flag.Bool("version", false, "Show version information")
		quiet          = flag.Bool("quiet", false, "Skip startup banner")
	)
	flag.Parse()

	if *version {
		fmt.Printf("briefcast %s\n", Version)
		fmt.Println("news bulletin aggregator")
		fmt.Println("github.com/mkerr/briefcast")
		return
	}

	if *generateConfig {
		home, _ := os.UserHomeDir()
		configFile := filepath.Join(home, ".config", "briefcast", "config.toml")

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			log.Fatalf("Failed to generate config: %v", err)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
		return
	}

	// SMTP credentials and default recipients live in the environment; a
	// local .env file is a convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *outputDir != "" {
		cfg.Storage.OutputDir = *outputDir
	}

	for _, dir := range []string{
		cfg.Storage.OutputDir,
		cfg.Storage.WorkDir,
		filepath.Dir(cfg.Storage.DatabasePath),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !*quiet {
		showBanner()
	}

	store, err := storage.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	index, err := search.NewIndex(cfg.Storage.SearchIndex)
	if err != nil {
		log.Fatalf("Failed to open search index: %v", err)
	}
	defer index.Close()

	generator := bulletin.NewGenerator(
		feed.NewResolver(cfg.Feed),
		download.NewDownloader(cfg.Download),
		audio.NewConcatenator(cfg.Audio, logger),
		cfg.Storage.WorkDir,
		logger,
	)
	sender := mail.NewSender(cfg.Email, logger)

	if *serve {
		runServer(cfg, store, index, generator, sender, logger, *devMode)
		return
	}

	if err := runOnce(cfg, store, index, generator, *profileID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config, store *storage.Store, index *search.Index, generator *bulletin.Generator, sender *mail.Sender, logger *zap.Logger, devMode bool) {
	api := server.New(cfg, store, index, generator, sender, logger)
	if devMode {
		api.SetPermissiveValidation(true)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// runOnce generates a single bulletin from the command line and prints a
// styled run summary.
func runOnce(cfg *config.Config, store *storage.Store, index *search.Index, generator *bulletin.Generator, profileID string) error {
	var (
		profile *storage.Profile
		err     error
	)
	if profileID != "" {
		profile, err = store.GetProfile(profileID)
	} else {
		profile, err = store.ActiveProfile()
	}
	if err != nil {
		return err
	}

	generator.SetProgress(printProgress)

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	outputPath := filepath.Join(cfg.Storage.OutputDir, fmt.Sprintf("%s_%s.%s", profile.ID, timestamp, cfg.Audio.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := generator.Generate(ctx, profile.SourceSpecs(), outputPath)
	if err != nil {
		return err
	}

	result.ProfileID = profile.ID
	if saveErr := store.SaveBulletin(result); saveErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record bulletin: %v\n", saveErr)
	}
	if idxErr := index.IndexBulletin(result); idxErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to index bulletin: %v\n", idxErr)
	}

	printSummary(result)
	return nil
}

var stageStyles = map[bulletin.Stage]lipgloss.Style{
	bulletin.StageDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")),
	bulletin.StageProcessing:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA86B")),
	bulletin.StageComplete:    lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3")).Bold(true),
	bulletin.StageWarning:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	bulletin.StageError:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
}

func printProgress(stage bulletin.Stage, message string) {
	style, ok := stageStyles[stage]
	if !ok {
		fmt.Println(message)
		return
	}
	fmt.Println(style.Render(fmt.Sprintf("[%s] %s", stage, message)))
}

func printSummary(result *bulletin.Result) {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Bold(true)

	lines := []string{
		label.Render("Bulletin:  ") + result.OutputPath,
		label.Render("Duration:  ") + fmt.Sprintf("%.1fs", result.TotalDurationSeconds),
		label.Render("Sources:   ") + fmt.Sprintf("%d of %d succeeded", len(result.SourcesSucceeded), len(result.SourcesAttempted)),
	}
	for _, failed := range result.SourcesFailed {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Render(fmt.Sprintf("  ✗ %s: %s", failed.Name, failed.Reason)))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(0, 2).
		MarginTop(1)

	fmt.Println(box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func showBanner() {
	colors := []lipgloss.Color{
		lipgloss.Color("#4ECDC4"),
		lipgloss.Color("#95E1D3"),
		lipgloss.Color("#FFA86B"),
	}

	lines := []string{
		"┏┓ ┏━┓╻┏━╸┏━╸┏━╸┏━┓┏━┓╺┳╸",
		"┣┻┓┣┳┛┃┣╸ ┣╸ ┃  ┣━┫┗━┓ ┃ ",
		"┗━┛╹┗╸╹┗━╸╹  ┗━╸╹ ╹┗━┛ ╹ ",
		"",
		"  your news, in one sitting",
	}

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i < 3)
		coloredLines = append(coloredLines, style.Render(line))
	}

	banner := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	fmt.Println(lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3).
		MarginTop(1).
		MarginBottom(1).
		Render(banner))
}
