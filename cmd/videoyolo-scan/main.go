// Command videoyolo-scan runs the detection pipeline on a local video file
// without going through the HTTP API. Handy for checking a detector setup.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/ai"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/annotate"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/classes"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/pipeline"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/video"
)

func main() {
	var (
		configPath string
		className  string
		outPath    string
		listOnly   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&className, "class", "", "Class label to look for, e.g. \"coche\"")
	flag.StringVar(&outPath, "out", "detections.zip", "Where to write the archive")
	flag.BoolVar(&listOnly, "list", false, "List the class labels and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] -class <label> <video>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if listOnly {
		for _, c := range classes.All() {
			fmt.Printf("%2d  %-22s %s\n", c.Index, c.Label, c.COCO)
		}
		return
	}

	if flag.NArg() != 1 || className == "" {
		flag.Usage()
		os.Exit(2)
	}
	videoPath := flag.Arg(0)

	classIndex, ok := classes.Lookup(className)
	if !ok {
		fmt.Fprintf(os.Stderr, "Clase no válida: %s\n", className)
		if s := classes.Suggest(className, 5); len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Did you mean: %v\n", s)
		}
		os.Exit(2)
	}

	_ = config.LoadDotEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, videoPath, className, classIndex, outPath); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, videoPath, label string, classIndex int, outPath string) error {
	decoder, err := newDecoder(cfg, log)
	if err != nil {
		return err
	}

	detector, err := ai.New(cfg.Detector, log)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	if closer, ok := detector.(io.Closer); ok {
		defer closer.Close()
	}
	if err := detector.HealthCheck(ctx); err != nil {
		return fmt.Errorf("detector %s not ready: %w", detector.Name(), err)
	}
	fmt.Printf("✅ Detector %s is ready\n", detector.Name())

	annotator, err := annotate.New(annotate.Options{
		Thickness:   cfg.Annotation.Thickness,
		FontSize:    cfg.Annotation.FontSize,
		JPEGQuality: cfg.Annotation.JPEGQuality,
	})
	if err != nil {
		return err
	}

	ws, err := pipeline.NewWorkspace(cfg.Processing.ScratchDir, uuid.NewString())
	if err != nil {
		return err
	}
	defer ws.Cleanup()

	// The pipeline deletes its input, so it works on a copy
	input := ws.VideoPath(videoPath)
	if err := copyFile(videoPath, input); err != nil {
		return err
	}

	processor := pipeline.NewProcessor(pipeline.Config{}, decoder, detector, annotator, log)
	fmt.Printf("Scanning %s for %q...\n", videoPath, label)

	result, err := processor.Process(ctx, pipeline.Job{
		ID:         ws.ID,
		Label:      label,
		ClassIndex: classIndex,
		VideoPath:  input,
		Workspace:  ws,
	})
	if err != nil {
		return err
	}

	if err := copyFile(result.ArchivePath, outPath); err != nil {
		return err
	}

	fmt.Printf("✅ %d frames scanned, %d with %q, %d detections in %s\n",
		result.FramesScanned, result.FramesMatched, label, len(result.Detections), result.Duration.Round(time.Millisecond))
	for _, d := range result.Detections {
		fmt.Printf("    - frame %d: (%d,%d)-(%d,%d) confidence %.2f%%\n", d.Frame, d.X1, d.Y1, d.X2, d.Y2, d.Confidence*100)
	}
	fmt.Printf("Archive written to %s\n", outPath)
	return nil
}

func newDecoder(cfg *config.Config, log *logger.Logger) (video.Decoder, error) {
	if cfg.Video.Decoder == "gocv" {
		d, err := video.NewCaptureDecoder(log)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	ffmpeg, err := video.NewFFmpegWrapper(cfg.Video.FFmpegPath, log)
	if err != nil {
		return nil, err
	}
	return video.NewFFmpegDecoder(ffmpeg, cfg.Video.FrameQuality, log), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	return out.Close()
}
