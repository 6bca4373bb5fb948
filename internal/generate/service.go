// Package generate orchestrates one video generation: request validation,
// submission, operation polling and artifact materialization. Exactly one
// job is issued and tracked per invocation.
package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"veoctl/internal/history"
	"veoctl/internal/storage"
	"veoctl/internal/veo"
)

// Static errors for the generation workflow.
var (
	// ErrPollTimeout is returned when the operation does not complete
	// within the wall-clock ceiling.
	ErrPollTimeout = errors.New("generate: timed out waiting for operation")
	// ErrOperationFailed is returned when the service reports a terminal
	// failure or completes without producing an artifact.
	ErrOperationFailed = errors.New("generate: operation failed")
)

// defaultPollTimeout is the wall-clock ceiling for operation polling.
const defaultPollTimeout = 900 * time.Second

// pollInterval chooses the delay before the next status check. Early checks
// stay responsive; long-running jobs are polled less often to cut request
// volume.
func pollInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < time.Minute:
		return 10 * time.Second
	case elapsed < 2*time.Minute:
		return 15 * time.Second
	default:
		return 30 * time.Second
	}
}

// Service runs the generation workflow against a veo.Service.
type Service struct {
	client    veo.Service
	publisher storage.Publisher
	logger    *slog.Logger
	validate  *validator.Validate

	model       string
	pollTimeout time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithPollTimeout sets the wall-clock ceiling for operation polling.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// WithPublisher attaches a storage publisher for finished artifacts.
func WithPublisher(p storage.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a generation Service for the given model.
func NewService(client veo.Service, model string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		client:      client,
		logger:      logger,
		validate:    validator.New(),
		model:       model,
		pollTimeout: defaultPollTimeout,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one generation end to end and returns the history entry for
// the produced artifact. No entry is returned on any failure path.
func (s *Service) Run(ctx context.Context, req Request) (*history.Entry, error) {
	if err := req.Validate(s.validate); err != nil {
		return nil, err
	}

	op, err := s.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	op, err = s.waitForOperation(ctx, op)
	if err != nil {
		return nil, err
	}

	if len(op.Artifacts) == 0 {
		if op.Failure != "" {
			return nil, fmt.Errorf("%w: %s", ErrOperationFailed, op.Failure)
		}
		return nil, ErrOperationFailed
	}

	s.logger.Info("generation succeeded", slog.String("operation", op.Name))
	return s.materialize(ctx, op, req)
}

// submit builds the wire request and starts the remote operation.
func (s *Service) submit(ctx context.Context, req Request) (veo.Operation, error) {
	sub := veo.SubmitRequest{
		Model:            s.model,
		Prompt:           req.Prompt,
		AspectRatio:      req.AspectRatio,
		DurationSeconds:  int32(req.Duration),
		NegativePrompt:   req.NegativePrompt,
		Seed:             req.Seed,
		PersonGeneration: req.PersonGeneration(),
		Image:            req.Image,
		LastFrame:        req.LastFrame,
		ReferenceImages:  req.ReferenceImages,
		Video:            req.Video,
	}

	s.logger.Info("sending generation request",
		slog.String("model", s.model),
		slog.String("prompt", req.Prompt),
		slog.String("aspect_ratio", req.AspectRatio),
		slog.Int("duration", req.Duration),
		slog.String("person_generation", sub.PersonGeneration),
		slog.Bool("image", req.Image != nil),
		slog.Bool("last_frame", req.LastFrame != nil),
		slog.Int("reference_images", len(req.ReferenceImages)),
		slog.Bool("video_extension", req.Video != nil),
	)

	op, err := s.client.Submit(ctx, sub)
	if err != nil {
		return veo.Operation{}, fmt.Errorf("submit request: %w", err)
	}

	s.logger.Info("operation started", slog.String("operation", op.Name))
	return op, nil
}

// waitForOperation polls the operation until it reports done or the ceiling
// is exceeded. A failed status query is retried on the next iteration with
// the previous snapshot; it neither aborts the loop nor resets the clock.
func (s *Service) waitForOperation(ctx context.Context, op veo.Operation) (veo.Operation, error) {
	start := s.now()

	for !op.Done {
		elapsed := s.now().Sub(start)
		if elapsed > s.pollTimeout {
			return op, fmt.Errorf("%w after %s", ErrPollTimeout, s.pollTimeout)
		}

		interval := pollInterval(elapsed)
		s.logger.Info("generating...",
			slog.Duration("elapsed", elapsed.Round(time.Second)),
			slog.Duration("next_check", interval),
		)

		if err := s.sleep(ctx, interval); err != nil {
			return op, err
		}

		next, err := s.client.PollOperation(ctx, op)
		if err != nil {
			if ctx.Err() != nil {
				return op, ctx.Err()
			}
			s.logger.Warn("status check failed", slog.String("error", err.Error()))
			continue
		}
		op = next
	}

	return op, nil
}

// materialize downloads the first generated artifact and writes it to disk
// atomically, then publishes it when a publisher is configured. A publish
// failure is logged but does not fail the run: the artifact is already on
// disk and the history entry must reflect that.
func (s *Service) materialize(ctx context.Context, op veo.Operation, req Request) (*history.Entry, error) {
	artifact := op.Artifacts[0]
	filename := req.Filename()

	s.logger.Info("downloading video",
		slog.String("kind", string(artifact.Kind)),
		slog.String("file", filename),
	)

	data, err := s.client.Download(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}

	if err := storage.WriteAtomic(filename, data); err != nil {
		return nil, fmt.Errorf("save %s: %w", filename, err)
	}
	s.logger.Info("saved video", slog.String("file", filename), slog.Int("bytes", len(data)))

	if s.publisher != nil {
		url, err := s.publisher.Publish(ctx, filepath.Base(filename), bytes.NewReader(data))
		if err != nil {
			s.logger.Warn("failed to publish artifact",
				slog.String("file", filename),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("published artifact", slog.String("url", url))
		}
	}

	return &history.Entry{
		Prompt:      req.Prompt,
		OutputFile:  filename,
		Duration:    req.Duration,
		AspectRatio: req.AspectRatio,
	}, nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
