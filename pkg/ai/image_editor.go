package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	defaultImageModel = "gpt-image-1"
	DefaultImageSize  = "1024x1024"
)

// AllowedImageSizes lists the sizes accepted by the image edit endpoint.
var AllowedImageSizes = []string{"256x256", "512x512", "1024x1024", "1024x1536", "1536x1024", "auto"}

// NormalizeImageSize returns raw when it is an allowed size, else DefaultImageSize.
func NormalizeImageSize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, s := range AllowedImageSizes {
		if raw == s {
			return s
		}
	}
	return DefaultImageSize
}

// SquareSide is the side length used to normalize inputs for a given size.
// Non-square sizes use their width; "auto" uses 1024.
func SquareSide(size string) int {
	w, _, ok := strings.Cut(NormalizeImageSize(size), "x")
	if !ok {
		return 1024
	}
	n, err := strconv.Atoi(w)
	if err != nil || n <= 0 {
		return 1024
	}
	return n
}

// ImageEditor applies a text instruction to a PNG image and returns the edited PNG.
type ImageEditor interface {
	Edit(ctx context.Context, png []byte, instruction string) ([]byte, error)
}

// OpenAIImageEditor calls the OpenAI /v1/images/edits endpoint.
type OpenAIImageEditor struct {
	baseURL    string
	apiKey     string
	model      string
	size       string
	httpClient *http.Client
}

func NewOpenAIImageEditor(baseURL, apiKey, model, size string) (*OpenAIImageEditor, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key required for image edits")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultImageModel
	}
	return &OpenAIImageEditor{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		size:       NormalizeImageSize(size),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (e *OpenAIImageEditor) Edit(ctx context.Context, png []byte, instruction string) ([]byte, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("image edit: empty input image")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"model": e.model, "prompt": instruction, "size": e.size} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="image.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(png); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image edit request: %w", err)
	}
	defer resp.Body.Close()
	if err := oaiStatusError("image edit", resp); err != nil {
		return nil, err
	}
	var out struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("image edit decode: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image edit returned empty data")
	}
	img, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("image edit base64: %w", err)
	}
	return img, nil
}
