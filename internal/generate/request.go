package generate

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"veoctl/internal/veo"
)

// Static errors for request validation.
var (
	// ErrPromptRequired is returned when a request has neither a prompt nor
	// a video-extension input.
	ErrPromptRequired = errors.New("generate: a prompt or a video-extension input is required")
	// ErrLastFrameNeedsImage is returned when a last-frame image is given
	// without a primary image.
	ErrLastFrameNeedsImage = errors.New("generate: a last-frame image requires a primary image")
)

// VideoExt is the extension appended to derived output filenames.
const VideoExt = ".mp4"

// maxFilenameBase caps the sanitized-prompt portion of a derived filename.
const maxFilenameBase = 50

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Request describes one video generation. Optional inputs are nil when not
// provided; they are never sent to the service as explicit zero values.
type Request struct {
	// Prompt is the text prompt. Optional when Video is set.
	Prompt string
	// OutputFile overrides the derived output filename.
	OutputFile string
	// Duration is the clip length in seconds.
	Duration int `validate:"oneof=4 6 8"`
	// AspectRatio is the output aspect ratio.
	AspectRatio string `validate:"oneof=16:9 9:16"`
	// NegativePrompt describes content to avoid.
	NegativePrompt string
	// Seed fixes the generation seed.
	Seed *int32
	// Image is the primary image for image-to-video.
	Image *veo.Image
	// LastFrame is the closing frame; requires Image.
	LastFrame *veo.Image
	// ReferenceImages bias the output toward preserving a subject's
	// appearance.
	ReferenceImages []*veo.Image `validate:"max=3"`
	// Video is a previously-generated artifact to extend. Whether the video
	// actually came from the service is enforced remotely.
	Video *veo.FileHandle
}

// Validate checks the request invariants.
func (r *Request) Validate(v *validator.Validate) error {
	if r.Prompt == "" && r.Video == nil {
		return ErrPromptRequired
	}
	if r.LastFrame != nil && r.Image == nil {
		return ErrLastFrameNeedsImage
	}
	if err := v.Struct(r); err != nil {
		return fmt.Errorf("generate: invalid request: %w", err)
	}
	return nil
}

// PersonGeneration derives the person-generation policy. Any visually
// conditioned generation requires the adult-only policy in some regions, so
// the permissive policy is only used for pure text prompts.
func (r *Request) PersonGeneration() string {
	if r.Image == nil && r.LastFrame == nil && len(r.ReferenceImages) == 0 {
		return "allow_all"
	}
	return "allow_adult"
}

// Filename resolves the output filename: the explicit override when given,
// otherwise the prompt reduced to alphanumerics and underscores and capped at
// 50 characters, with a generic base when there is no prompt.
func (r *Request) Filename() string {
	if r.OutputFile != "" {
		return r.OutputFile
	}

	base := "video"
	if r.Prompt != "" {
		base = filenameSanitizer.ReplaceAllString(r.Prompt, "_")
		if len(base) > maxFilenameBase {
			base = base[:maxFilenameBase]
		}
	}
	return base + VideoExt
}
