// Package main provides the veoctl command-line client for the Veo
// video-generation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"veoctl/internal/config"
	"veoctl/internal/generate"
	"veoctl/internal/history"
	"veoctl/internal/media"
	"veoctl/internal/storage"
	"veoctl/internal/veo"
)

// Exit codes.
const (
	exitFatal     = 1
	exitInterrupt = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(exitInterrupt)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func run(ctx context.Context, argv []string) error {
	fs := flag.NewFlagSet("veoctl", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: veoctl [flags] [prompt]\n\nGenerate a video with the Veo model.\n\n")
		fs.PrintDefaults()
	}

	var (
		outputFile     string
		duration       int
		aspectRatio    string
		negativePrompt string
		seed           int
		imagePath      string
		lastFramePath  string
		refImagePaths  stringList
		videoPath      string
		showHistory    bool
		rerun          int
	)
	fs.StringVar(&outputFile, "output-file", "", "Output filename.")
	fs.StringVar(&outputFile, "o", "", "Output filename (shorthand).")
	fs.IntVar(&duration, "duration", 8, "Duration in seconds (4, 6 or 8).")
	fs.StringVar(&aspectRatio, "aspect-ratio", "16:9", "Aspect ratio (16:9 or 9:16).")
	fs.StringVar(&negativePrompt, "negative-prompt", "", "Negative prompt.")
	fs.IntVar(&seed, "seed", 0, "Generation seed.")
	fs.StringVar(&imagePath, "image", "", "Initial image path for image-to-video.")
	fs.StringVar(&lastFramePath, "last-frame", "", "Last frame image path (requires -image).")
	fs.Var(&refImagePaths, "ref-image", "Reference image path, repeatable (max 3).")
	fs.StringVar(&videoPath, "video", "", "Path to a previously generated video to extend.")
	fs.BoolVar(&showHistory, "history", false, "Display prompt history.")
	fs.IntVar(&rerun, "rerun", 0, "Rerun a prompt from history by number.")

	if err := fs.Parse(argv); err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// The history file is read once here and written once after a
	// successful generation. Concurrent invocations are not coordinated.
	store := history.NewStore(cfg.HistoryFile)
	entries, err := store.Load()
	if err != nil {
		return err
	}

	if showHistory {
		history.Display(os.Stdout, entries)
		return nil
	}

	req := generate.Request{
		Prompt:         fs.Arg(0),
		OutputFile:     outputFile,
		Duration:       duration,
		AspectRatio:    aspectRatio,
		NegativePrompt: negativePrompt,
	}

	seedSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedSet = true
		}
	})
	if seedSet {
		v := int32(seed)
		req.Seed = &v
	}

	if rerun != 0 {
		prompt, err := history.Replay(entries, rerun)
		if err != nil {
			logger.Error("invalid history number", slog.Int("index", rerun), slog.String("error", err.Error()))
			return nil
		}
		logger.Info("rerunning prompt", slog.String("prompt", prompt))
		req.Prompt = prompt
	}

	if req.Prompt == "" {
		req.Prompt = promptFromStdin()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := veo.NewClient(ctx, veo.ClientConfig{
		APIKey:   cfg.GeminiAPIKey,
		Project:  cfg.GoogleCloudProject,
		Location: cfg.GoogleCloudLocation,
	}, logger)
	if err != nil {
		return err
	}

	loader := media.NewLoader(logger, media.WithUploadPollTimeout(cfg.UploadPollTimeout()))
	req.Image = loader.LoadImage(imagePath)
	req.LastFrame = loader.LoadImage(lastFramePath)
	for _, p := range refImagePaths {
		if img := loader.LoadImage(p); img != nil {
			req.ReferenceImages = append(req.ReferenceImages, img)
		}
	}
	if videoPath != "" {
		logger.Warn("video extension uploads a local file; the service only accepts videos it generated")
		req.Video = loader.UploadVideoForExtension(ctx, client, videoPath)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	opts := []generate.Option{generate.WithPollTimeout(cfg.PollTimeout())}
	if cfg.S3Enabled() {
		publisher, err := storage.NewS3Publisher(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("create S3 publisher: %w", err)
		}
		opts = append(opts, generate.WithPublisher(publisher))
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
	}

	svc := generate.NewService(client, cfg.ModelID, logger, opts...)

	entry, err := svc.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Expected failure path: the cause is reported and the process
		// exits cleanly without touching the history file.
		logger.Error("generation failed", slog.String("error", err.Error()))
		return nil
	}

	entries = append(entries, *entry)
	if err := store.Save(entries); err != nil {
		return err
	}

	return nil
}

// promptFromStdin reads a piped prompt when standard input is not a
// terminal. Returns empty when stdin is interactive or unreadable.
func promptFromStdin() string {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
