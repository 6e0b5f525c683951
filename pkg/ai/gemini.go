package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"appraiserai/pkg/domain"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiConfig configures the Gemini vision client.
type GeminiConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
	Sleep       Sleeper
	LogRequests bool
}

// GeminiVisionClient calls generateContent with an inline_data image part.
type GeminiVisionClient struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	transport transport
}

// NewGeminiVisionClient constructs a client with the provided API key.
func NewGeminiVisionClient(cfg GeminiConfig) (*GeminiVisionClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/")
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiVisionClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: cfg.MaxTokens,
		transport: newTransport("gemini", cfg.Timeout, cfg.Retry, cfg.Sleep, cfg.LogRequests),
	}, nil
}

// Describe implements VisionGenerator.
func (c *GeminiVisionClient) Describe(ctx context.Context, in VisionRequest) (VisionResult, error) {
	if err := in.validate(); err != nil {
		return VisionResult{}, err
	}
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: in.Prompt},
				{InlineData: &geminiBlob{MIMEType: in.mimeType(), Data: in.ImageBase64}},
			},
		}},
	}
	if system := strings.TrimSpace(in.System); system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if c.maxTokens > 0 || in.Temperature > 0 {
		reqBody.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: c.maxTokens}
		if in.Temperature > 0 {
			t := in.Temperature
			reqBody.GenerationConfig.Temperature = &t
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return VisionResult{}, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	respBody, err := c.transport.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, geminiErrorMessage)
	if err != nil {
		return VisionResult{}, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, fmt.Sprintf("decode gemini response: %v", err))
	}
	if len(resp.Candidates) == 0 {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, "")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return VisionResult{}, newError(KindInvalidResponse, http.StatusOK, ErrInvalidResponse, "")
	}
	return VisionResult{
		Text:  text,
		Model: c.model,
		Usage: domain.Usage{
			Model:            c.model,
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func geminiErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
