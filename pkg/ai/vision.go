package ai

import (
	"context"
	"strings"

	"appraiserai/pkg/domain"
)

// VisionGenerator describes an image using a prompt.
// OpenAI, Gemini and Ollama clients implement this interface.
type VisionGenerator interface {
	Describe(ctx context.Context, req VisionRequest) (VisionResult, error)
}

// VisionRequest is one image plus instructions.
// ImageBase64 carries no data URL prefix.
type VisionRequest struct {
	Prompt      string
	System      string
	ImageBase64 string
	MIMEType    string
	Temperature float64
}

// VisionResult is the generated text and token accounting.
type VisionResult struct {
	Text  string
	Model string
	Usage domain.Usage
}

func (r VisionRequest) validate() error {
	if strings.TrimSpace(r.ImageBase64) == "" {
		return InvalidInput("image is required")
	}
	if strings.HasPrefix(strings.TrimSpace(r.ImageBase64), "data:") {
		return InvalidInput("image must be raw base64 without a data URL prefix")
	}
	if strings.TrimSpace(r.Prompt) == "" && strings.TrimSpace(r.System) == "" {
		return InvalidInput("prompt is required")
	}
	return nil
}

func (r VisionRequest) mimeType() string {
	if m := strings.TrimSpace(r.MIMEType); m != "" {
		return m
	}
	return "image/jpeg"
}
