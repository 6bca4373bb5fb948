package veo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Static errors for Veo client operations.
var (
	// ErrCredentialsMissing is returned when neither an API key nor a
	// Google Cloud project is configured.
	ErrCredentialsMissing = errors.New("veo: no API key and no Google Cloud project configured")
	// ErrModelRequired is returned when a submission carries no model ID.
	ErrModelRequired = errors.New("veo: model ID is required")
	// ErrOperationNotPollable is returned when PollOperation is handed an
	// operation that did not originate from this client.
	ErrOperationNotPollable = errors.New("veo: operation carries no remote handle")
	// ErrEmptyArtifactRef is returned when Download is handed a reference
	// that points at nothing.
	ErrEmptyArtifactRef = errors.New("veo: artifact reference is empty")
)

// Service defines the remote-service boundary the rest of the program
// depends on. Submissions return a re-queryable Operation; PollOperation is
// idempotent and side-effect-free.
type Service interface {
	// Submit starts a video generation job and returns its operation handle.
	Submit(ctx context.Context, req SubmitRequest) (Operation, error)

	// PollOperation re-queries the operation and returns a fresh snapshot.
	PollOperation(ctx context.Context, op Operation) (Operation, error)

	// UploadVideo uploads a local video to the service's file storage and
	// returns its handle. The file may still be processing on return.
	UploadVideo(ctx context.Context, path string) (FileHandle, error)

	// GetFile re-fetches the current state of an uploaded file.
	GetFile(ctx context.Context, name string) (FileHandle, error)

	// Download fetches the raw bytes of a completed artifact.
	Download(ctx context.Context, ref ArtifactRef) ([]byte, error)
}

type rawOperation = *genai.GenerateVideosOperation

type directRef = genai.Video

// ClientConfig carries the credentials and endpoint selection for the client.
// An API key selects the Gemini API backend; otherwise a project/location
// pair selects the Vertex AI backend.
type ClientConfig struct {
	APIKey   string
	Project  string
	Location string
}

// Client is the genai-backed implementation of Service.
type Client struct {
	gc     *genai.Client
	logger *slog.Logger
}

// NewClient creates a Veo client from the given credentials.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var gcfg *genai.ClientConfig
	switch {
	case cfg.APIKey != "":
		logger.Info("using API key authentication")
		gcfg = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	case cfg.Project != "":
		logger.Info("using Vertex AI authentication",
			slog.String("project", cfg.Project),
			slog.String("location", cfg.Location),
		)
		gcfg = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	default:
		return nil, ErrCredentialsMissing
	}

	gc, err := genai.NewClient(ctx, gcfg)
	if err != nil {
		return nil, fmt.Errorf("veo: create client: %w", err)
	}

	return &Client{gc: gc, logger: logger}, nil
}

// Submit starts a video generation job. Optional request fields that were not
// provided are left out of the remote call entirely.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Operation, error) {
	if req.Model == "" {
		return Operation{}, ErrModelRequired
	}

	cfg := buildGenerateConfig(req)

	var (
		raw rawOperation
		err error
	)
	if req.Video != nil {
		source := &genai.GenerateVideosSource{
			Prompt: req.Prompt,
			Image:  toGenaiImage(req.Image),
			Video: &genai.Video{
				URI:      req.Video.URI,
				MIMEType: req.Video.MIMEType,
			},
		}
		raw, err = c.gc.Models.GenerateVideosFromSource(ctx, req.Model, source, cfg)
	} else {
		raw, err = c.gc.Models.GenerateVideos(ctx, req.Model, req.Prompt, toGenaiImage(req.Image), cfg)
	}
	if err != nil {
		return Operation{}, fmt.Errorf("veo: submit: %w", err)
	}

	return fromRawOperation(raw), nil
}

// PollOperation re-queries the remote operation state.
func (c *Client) PollOperation(ctx context.Context, op Operation) (Operation, error) {
	if op.raw == nil {
		return Operation{}, ErrOperationNotPollable
	}

	raw, err := c.gc.Operations.GetVideosOperation(ctx, op.raw, nil)
	if err != nil {
		return Operation{}, fmt.Errorf("veo: poll operation: %w", err)
	}

	return fromRawOperation(raw), nil
}

// UploadVideo uploads a local video through the files API.
func (c *Client) UploadVideo(ctx context.Context, path string) (FileHandle, error) {
	f, err := c.gc.Files.UploadFromPath(ctx, path, nil)
	if err != nil {
		return FileHandle{}, fmt.Errorf("veo: upload %s: %w", path, err)
	}
	return fromGenaiFile(f), nil
}

// GetFile re-fetches an uploaded file's current state.
func (c *Client) GetFile(ctx context.Context, name string) (FileHandle, error) {
	f, err := c.gc.Files.Get(ctx, name, nil)
	if err != nil {
		return FileHandle{}, fmt.Errorf("veo: get file %s: %w", name, err)
	}
	return fromGenaiFile(f), nil
}

// Download fetches the raw bytes for an artifact reference, resolving the
// named and direct forms explicitly.
func (c *Client) Download(ctx context.Context, ref ArtifactRef) ([]byte, error) {
	switch ref.Kind {
	case RefNamed:
		f, err := c.gc.Files.Get(ctx, ref.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("veo: resolve artifact %s: %w", ref.Name, err)
		}
		data, err := c.gc.Files.Download(ctx, f, nil)
		if err != nil {
			return nil, fmt.Errorf("veo: download artifact %s: %w", ref.Name, err)
		}
		return data, nil
	case RefDirect:
		if ref.direct == nil {
			return nil, ErrEmptyArtifactRef
		}
		if len(ref.direct.VideoBytes) > 0 {
			return ref.direct.VideoBytes, nil
		}
		data, err := c.gc.Files.Download(ctx, ref.direct, nil)
		if err != nil {
			return nil, fmt.Errorf("veo: download artifact: %w", err)
		}
		return data, nil
	default:
		return nil, ErrEmptyArtifactRef
	}
}

// buildGenerateConfig maps a SubmitRequest to the SDK config. Optional
// fields that were not provided stay unset so the service never sees an
// explicit zero value.
func buildGenerateConfig(req SubmitRequest) *genai.GenerateVideosConfig {
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:     req.AspectRatio,
		NumberOfVideos:  1,
		DurationSeconds: genai.Ptr(req.DurationSeconds),
	}
	if req.NegativePrompt != "" {
		cfg.NegativePrompt = req.NegativePrompt
	}
	if req.Seed != nil {
		cfg.Seed = req.Seed
	}
	switch req.PersonGeneration {
	case "":
	case "allow_all":
		cfg.PersonGeneration = "allow_all"
	default:
		cfg.PersonGeneration = "allow_adult"
	}
	if req.LastFrame != nil {
		cfg.LastFrame = toGenaiImage(req.LastFrame)
	}
	for _, ref := range req.ReferenceImages {
		if ref == nil {
			continue
		}
		// "asset" preserves subject appearance rather than just style.
		cfg.ReferenceImages = append(cfg.ReferenceImages, &genai.VideoGenerationReferenceImage{
			Image:         toGenaiImage(ref),
			ReferenceType: "asset",
		})
	}
	return cfg
}

// fromRawOperation maps an SDK operation to the domain handle, keeping the raw
// pointer so the operation can be re-queried.
func fromRawOperation(raw rawOperation) Operation {
	op := Operation{
		Name: raw.Name,
		Done: raw.Done,
		raw:  raw,
	}

	if raw.Error != nil {
		op.Failure = fmt.Sprintf("%v", raw.Error)
	}

	if raw.Response != nil {
		for _, gv := range raw.Response.GeneratedVideos {
			if gv == nil || gv.Video == nil {
				continue
			}
			op.Artifacts = append(op.Artifacts, artifactRef(gv.Video))
		}
	}

	return op
}

// artifactRef classifies a generated video reference. References whose URI
// addresses the files API resolve by name; everything else (inline bytes,
// signed URIs) downloads directly.
func artifactRef(v *genai.Video) ArtifactRef {
	if name, ok := fileNameFromURI(v.URI); ok && len(v.VideoBytes) == 0 {
		return ArtifactRef{Kind: RefNamed, Name: name, URI: v.URI, direct: v}
	}
	return ArtifactRef{Kind: RefDirect, URI: v.URI, direct: v}
}

// fileNameFromURI extracts a files-API resource name ("files/<id>") from a
// URI, if the URI addresses the files API.
func fileNameFromURI(uri string) (string, bool) {
	idx := strings.Index(uri, "files/")
	if idx < 0 {
		return "", false
	}
	name := uri[idx:]
	if cut := strings.IndexAny(name, ":?"); cut >= 0 {
		name = name[:cut]
	}
	if name == "files/" {
		return "", false
	}
	return name, true
}

func fromGenaiFile(f *genai.File) FileHandle {
	return FileHandle{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
		State:    FileState(f.State),
	}
}

func toGenaiImage(img *Image) *genai.Image {
	if img == nil {
		return nil
	}
	return &genai.Image{
		ImageBytes: img.Bytes,
		MIMEType:   img.MIMEType,
	}
}

// Compile-time check that Client implements Service.
var _ Service = (*Client)(nil)
