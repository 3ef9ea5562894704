package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultModerationModel = "omni-moderation-latest"

// Moderator decides whether user text is acceptable.
type Moderator interface {
	Flagged(ctx context.Context, text string) (bool, error)
}

// OpenAIModerator calls the OpenAI /v1/moderations endpoint.
type OpenAIModerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIModerator(baseURL, apiKey, model string) (*OpenAIModerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key required for moderation")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModerationModel
	}
	return &OpenAIModerator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Flagged reports whether the first moderation result is flagged.
func (m *OpenAIModerator) Flagged(ctx context.Context, text string) (bool, error) {
	body, err := json.Marshal(map[string]string{"model": m.model, "input": text})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("moderation request: %w", err)
	}
	defer resp.Body.Close()
	if err := oaiStatusError("moderation", resp); err != nil {
		return false, err
	}
	var out struct {
		Results []struct {
			Flagged bool `json:"flagged"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("moderation decode: %w", err)
	}
	if len(out.Results) == 0 {
		return false, nil
	}
	return out.Results[0].Flagged, nil
}
