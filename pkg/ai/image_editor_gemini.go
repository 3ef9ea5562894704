package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiImageModel = "gemini-2.5-flash-image"

// GeminiImageEditor edits images with a multimodal Gemini model.
type GeminiImageEditor struct {
	client *genai.Client
	model  string
}

// NewGeminiImageEditor opens a Gemini client. Call Close when done.
func NewGeminiImageEditor(ctx context.Context, apiKey, model string) (*GeminiImageEditor, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required for image edits")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGeminiImageModel
	}
	return &GeminiImageEditor{client: client, model: model}, nil
}

func (e *GeminiImageEditor) Close() error {
	return e.client.Close()
}

func (e *GeminiImageEditor) Edit(ctx context.Context, png []byte, instruction string) ([]byte, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("image edit: empty input image")
	}
	model := e.client.GenerativeModel(e.model)
	resp, err := model.GenerateContent(ctx, genai.Text(instruction), genai.ImageData("png", png))
	if err != nil {
		return nil, fmt.Errorf("gemini image edit: %w", err)
	}
	return firstImageBlob(resp)
}

func firstImageBlob(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini image edit returned no candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Blob:
			if strings.HasPrefix(p.MIMEType, "image/") && len(p.Data) > 0 {
				return p.Data, nil
			}
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	if text.Len() > 0 {
		return nil, fmt.Errorf("gemini image edit returned text only: %s", strings.TrimSpace(text.String()))
	}
	return nil, fmt.Errorf("gemini image edit returned no image")
}
