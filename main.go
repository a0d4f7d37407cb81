package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/annotate"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/health"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/pipeline"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/publish"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/state"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/storage"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting videoyolo",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	// Create main context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcMgr := service.NewManager(log)
	healthMgr := health.NewManager(log, svcMgr)

	// Frame decoding
	ffmpeg, err := video.NewFFmpegWrapper(cfg.Video.FFmpegPath, log)
	if err != nil && cfg.Video.Decoder == "ffmpeg" {
		log.Error("FFmpeg is required by the ffmpeg decoder", "error", err)
		os.Exit(1)
	}
	var decoder video.Decoder
	switch cfg.Video.Decoder {
	case "gocv":
		decoder, err = video.NewCaptureDecoder(log)
		if err != nil {
			log.Error("Failed to create OpenCV decoder", "error", err)
			os.Exit(1)
		}
	default:
		decoder = video.NewFFmpegDecoder(ffmpeg, cfg.Video.FrameQuality, log)
	}
	if ffmpeg != nil {
		healthMgr.RegisterChecker(health.NewFFmpegChecker(ffmpeg))
	}

	// Detection and annotation
	detector, err := ai.New(cfg.Detector, log)
	if err != nil {
		log.Error("Failed to create detector", "backend", cfg.Detector.Backend, "error", err)
		os.Exit(1)
	}
	healthMgr.RegisterChecker(health.NewDetectorChecker(cfg.Detector.Backend, detector))

	annotator, err := annotate.New(annotate.Options{
		Thickness:   cfg.Annotation.Thickness,
		FontSize:    cfg.Annotation.FontSize,
		JPEGQuality: cfg.Annotation.JPEGQuality,
	})
	if err != nil {
		log.Error("Failed to create annotator", "error", err)
		os.Exit(1)
	}

	processor := pipeline.NewProcessor(pipeline.Config{
		ProgressEvery: cfg.Processing.ProgressEvery,
	}, decoder, detector, annotator, log)
	svcMgr.Register(processor)

	server := web.NewServer(cfg.Server, cfg.Processing.ScratchDir, processor, log)
	server.SetVersion(version)

	diskMonitor := storage.NewDiskMonitor(cfg.Processing.ScratchDir, 0, log)
	server.SetSpaceChecker(diskMonitor)
	healthMgr.RegisterChecker(health.NewScratchChecker(cfg.Processing.ScratchDir, diskMonitor))

	// Optional job history
	var pruner storage.JobPruner
	if cfg.Database.Enabled {
		stateMgr, err := state.NewManager(cfg.Database, log)
		if err != nil {
			log.Error("Failed to open job history", "path", cfg.Database.Path, "error", err)
			os.Exit(1)
		}
		defer stateMgr.Close()

		if n, err := stateMgr.RecoverState(ctx); err != nil {
			log.Warn("Failed to recover job history", "error", err)
		} else if n > 0 {
			log.Warn("Marked interrupted jobs as failed", "count", n)
		}
		if err := stateMgr.SaveSystemState(ctx, "last_start_version", version); err != nil {
			log.Warn("Failed to save system state", "error", err)
		}

		server.SetJobStore(stateMgr)
		healthMgr.RegisterChecker(health.NewDatabaseChecker(stateMgr))
		pruner = stateMgr
	}

	// Optional archive publication
	if cfg.Publish.S3.Enabled {
		publisher, err := publish.NewS3Publisher(cfg.Publish.S3, log)
		if err != nil {
			log.Error("Failed to create S3 publisher", "error", err)
			os.Exit(1)
		}
		svcMgr.Register(publisher)
		server.SetPublisher(publisher)
	}

	svcMgr.Register(storage.NewJanitor(storage.JanitorConfig{
		ScratchDir:    cfg.Processing.ScratchDir,
		Prefix:        pipeline.WorkspacePrefix,
		ScratchTTL:    cfg.Processing.ScratchTTL,
		Interval:      cfg.Processing.JanitorInterval,
		RetentionDays: cfg.Database.RetentionDays,
		Pruner:        pruner,
	}, log))

	// Registered last so it is the first to stop on shutdown
	svcMgr.Register(server)

	if cfg.Health.Enabled {
		if err := healthMgr.Start(ctx, cfg.Health.Port); err != nil {
			log.Error("Failed to start health check server", "error", err)
			os.Exit(1)
		}
	}

	if err := svcMgr.Start(ctx); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if cfg.Health.Enabled {
		if err := healthMgr.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping health check server", "error", err)
		}
	}

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
