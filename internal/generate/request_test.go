package generate

import (
	"regexp"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veoctl/internal/veo"
)

func testImage() *veo.Image {
	return &veo.Image{Bytes: []byte{1, 2, 3}, MIMEType: "image/png"}
}

func TestRequest_PersonGeneration(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"text only", Request{Prompt: "a fox"}, "allow_all"},
		{"negative prompt and seed are not visual inputs", Request{Prompt: "a fox", NegativePrompt: "rain", Seed: ptrInt32(7)}, "allow_all"},
		{"primary image", Request{Prompt: "a fox", Image: testImage()}, "allow_adult"},
		{"last frame", Request{Prompt: "a fox", Image: testImage(), LastFrame: testImage()}, "allow_adult"},
		{"reference image", Request{Prompt: "a fox", ReferenceImages: []*veo.Image{testImage()}}, "allow_adult"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.PersonGeneration())
		})
	}
}

func TestRequest_Filename(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"explicit output wins", Request{Prompt: "a fox", OutputFile: "custom.mp4"}, "custom.mp4"},
		{"sanitized prompt", Request{Prompt: "A cat!! on a roof (2024)"}, "A_cat_on_a_roof_2024_.mp4"},
		{"plain prompt", Request{Prompt: "a red fox"}, "a_red_fox.mp4"},
		{"no prompt falls back", Request{}, "video.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Filename())
		})
	}
}

func TestRequest_FilenameSanitizedAndCapped(t *testing.T) {
	long := "An extremely, extremely long prompt about a cat that walks across many rooftops at night!"
	req := Request{Prompt: long}

	name := req.Filename()
	base := name[:len(name)-len(VideoExt)]

	assert.Len(t, base, 50)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_]+\.mp4$`), name)
}

func TestRequest_Validate(t *testing.T) {
	v := validator.New()

	valid := func() Request {
		return Request{Prompt: "a fox", Duration: 8, AspectRatio: "16:9"}
	}

	t.Run("valid", func(t *testing.T) {
		req := valid()
		require.NoError(t, req.Validate(v))
	})

	t.Run("video extension without prompt", func(t *testing.T) {
		req := Request{Duration: 8, AspectRatio: "16:9", Video: &veo.FileHandle{Name: "files/abc"}}
		require.NoError(t, req.Validate(v))
	})

	t.Run("missing prompt and video", func(t *testing.T) {
		req := Request{Duration: 8, AspectRatio: "16:9"}
		assert.ErrorIs(t, req.Validate(v), ErrPromptRequired)
	})

	t.Run("last frame without image", func(t *testing.T) {
		req := valid()
		req.LastFrame = testImage()
		assert.ErrorIs(t, req.Validate(v), ErrLastFrameNeedsImage)
	})

	t.Run("invalid duration", func(t *testing.T) {
		req := valid()
		req.Duration = 5
		assert.Error(t, req.Validate(v))
	})

	t.Run("invalid aspect ratio", func(t *testing.T) {
		req := valid()
		req.AspectRatio = "4:3"
		assert.Error(t, req.Validate(v))
	})

	t.Run("too many reference images", func(t *testing.T) {
		req := valid()
		req.ReferenceImages = []*veo.Image{testImage(), testImage(), testImage(), testImage()}
		assert.Error(t, req.Validate(v))
	})

	t.Run("three reference images allowed", func(t *testing.T) {
		req := valid()
		req.ReferenceImages = []*veo.Image{testImage(), testImage(), testImage()}
		require.NoError(t, req.Validate(v))
	})
}

func ptrInt32(v int32) *int32 {
	return &v
}
