// Package media loads local image and video assets into transfer-ready
// descriptors for a generation request. Asset problems are non-fatal: a
// failed load is logged and the optional input is simply omitted.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"veoctl/internal/veo"
)

// DefaultImageMIME is used when image MIME detection fails.
const DefaultImageMIME = "image/png"

// defaultUploadPollInterval is the fixed delay between file-processing
// state checks after a video upload.
const defaultUploadPollInterval = 2 * time.Second

// ErrUploadTimeout is returned internally when an uploaded file is still
// processing after the configured ceiling. The original tool waited forever
// here; the ceiling turns a stuck upload into a reported failure.
var ErrUploadTimeout = errors.New("media: upload processing timed out")

// Loader reads local assets and stages videos through the file-storage
// endpoint.
type Loader struct {
	logger *slog.Logger

	uploadPollInterval time.Duration
	uploadPollTimeout  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithUploadPollTimeout sets the ceiling for upload-processing polling.
func WithUploadPollTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.uploadPollTimeout = d
	}
}

// WithUploadPollInterval sets the fixed delay between processing checks.
func WithUploadPollInterval(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.uploadPollInterval = d
	}
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loader{
		logger:             logger,
		uploadPollInterval: defaultUploadPollInterval,
		uploadPollTimeout:  2 * time.Minute,
		now:                time.Now,
		sleep:              sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadImage reads a local image into a descriptor. Any failure is logged and
// reported as a nil descriptor so the caller can proceed without the input.
// MIME type is sniffed from the content and falls back to image/png.
func (l *Loader) LoadImage(path string) *veo.Image {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from CLI flags
	if err != nil {
		l.logger.Error("failed to load image",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil
	}

	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		l.logger.Warn("could not detect image MIME type, using default",
			slog.String("path", path),
			slog.String("default", DefaultImageMIME),
		)
		mime = DefaultImageMIME
	}

	return &veo.Image{Bytes: data, MIMEType: mime}
}

// UploadVideoForExtension uploads a local video to the service's file storage
// and waits for it to leave the processing state, checking at a fixed
// interval under a wall-clock ceiling. It returns nil and logs the cause when
// the upload fails, ends in a non-active state, or times out; errors are
// never propagated. The service only accepts videos it generated itself, but
// that is enforced remotely, not here.
func (l *Loader) UploadVideoForExtension(ctx context.Context, svc veo.Service, path string) *veo.FileHandle {
	if path == "" {
		return nil
	}

	l.logger.Info("uploading video for extension", slog.String("path", path))

	handle, err := svc.UploadVideo(ctx, path)
	if err != nil {
		l.logger.Error("failed to upload video",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil
	}

	handle, err = l.waitForProcessing(ctx, svc, handle)
	if err != nil {
		l.logger.Error("video upload did not become ready",
			slog.String("path", path),
			slog.String("name", handle.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if handle.State != veo.FileStateActive {
		l.logger.Error("video upload ended in unusable state",
			slog.String("path", path),
			slog.String("state", string(handle.State)),
		)
		return nil
	}

	return &handle
}

// waitForProcessing polls the uploaded file until it leaves the processing
// state or the ceiling is hit.
func (l *Loader) waitForProcessing(ctx context.Context, svc veo.Service, handle veo.FileHandle) (veo.FileHandle, error) {
	start := l.now()

	for handle.State == veo.FileStateProcessing {
		if l.now().Sub(start) > l.uploadPollTimeout {
			return handle, fmt.Errorf("%w after %s", ErrUploadTimeout, l.uploadPollTimeout)
		}

		l.logger.Info("processing video upload...")
		if err := l.sleep(ctx, l.uploadPollInterval); err != nil {
			return handle, err
		}

		next, err := svc.GetFile(ctx, handle.Name)
		if err != nil {
			return handle, err
		}
		handle = next
	}

	return handle, nil
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
