package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	codereel "github.com/mgeist/codereel"
	"github.com/mgeist/codereel/internal/api"
	"github.com/mgeist/codereel/internal/config"
	"github.com/mgeist/codereel/internal/content"
	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/logger"
	"github.com/mgeist/codereel/internal/render"
	"github.com/mgeist/codereel/internal/stream"
	"github.com/mgeist/codereel/internal/tts"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/codereel.yaml)")
	port := flag.Int("port", 8001, "Port to listen on")
	flag.Parse()

	// Load .env if present; real environment variables win
	_ = godotenv.Load()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/codereel.yaml"
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info", "console")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}

	// Initialize logger with configured level and format
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// First run: write the defaulted config so it can be edited in place
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := cfg.Save(cfgPath); err != nil {
			logger.Warn("Could not write default config", "path", cfgPath, "error", err)
		} else {
			logger.Info("Wrote default config", "path", cfgPath)
		}
	}

	// Override with environment variables
	if envOut := os.Getenv("OUTPUT_DIR"); envOut != "" {
		cfg.OutputDir = envOut
	}
	if envRemotion := os.Getenv("REMOTION_DIR"); envRemotion != "" {
		cfg.RemotionDir = envRemotion
	}
	if envBase := os.Getenv("BASE_URL"); envBase != "" {
		cfg.BaseURL = envBase
	}

	audioDir := cfg.GetAudioDir()

	// Ensure artifact directories exist
	for _, dir := range []string{cfg.OutputDir, audioDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("Could not create directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                         CODEREEL                          ║")
	fmt.Println("║          AI-narrated coding tutorial video server         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:      v%s\n", codereel.Version)
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Output:       %s\n", cfg.OutputDir)
	fmt.Printf("  Audio:        %s\n", audioDir)
	fmt.Printf("  Remotion:     %s\n", cfg.RemotionDir)
	fmt.Printf("  Base URL:     %s\n", cfg.BaseURL)
	fmt.Printf("  Voice:        %s\n", cfg.TTSVoice)
	fmt.Println()

	// Initialize components
	store := jobs.NewMemoryStore()
	hub := stream.NewHub()

	generator := content.NewGenerator(cfg.ClaudePath)
	narrator := tts.NewSynthesizer(cfg.EdgeTTSPath, cfg.TTSVoice, audioDir, cfg.Timeouts.AudioPerStep)
	renderer := render.NewRenderer(cfg.NodePath, cfg.FFprobePath, cfg.RemotionDir, cfg.OutputDir, cfg.BaseURL)

	orchestrator := jobs.NewOrchestrator(store, hub, generator, narrator, renderer, cfg.Timeouts)

	// Create API handler
	handler := api.NewHandler(store, orchestrator, hub, cfg.OutputDir, audioDir)
	router := api.NewRouter(handler)

	fmt.Printf("  Starting server on port %d\n", *port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	logger.Info("Codereel started", "version", codereel.Version, "port", *port, "voice", cfg.TTSVoice)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n  Shutting down...")
		logger.Info("Shutdown signal received")
		orchestrator.Stop()
		server.Close()
	}()

	// Start server
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		orchestrator.Stop()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
