package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestOpenAIModeratorFlagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "omni-moderation-latest" {
			t.Fatalf("unexpected model %q", body["model"])
		}
		flagged := strings.Contains(body["input"], "bad")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"flagged": flagged}}})
	}))
	defer srv.Close()

	m, err := NewOpenAIModerator(srv.URL+"/v1", "sk-test", "")
	if err != nil {
		t.Fatalf("new moderator: %v", err)
	}
	if flagged, err := m.Flagged(context.Background(), "a bad thing"); err != nil || !flagged {
		t.Fatalf("expected flagged, got %v %v", flagged, err)
	}
	if flagged, err := m.Flagged(context.Background(), "sunglasses"); err != nil || flagged {
		t.Fatalf("expected clean, got %v %v", flagged, err)
	}
}

func TestOpenAIModeratorSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	m, _ := NewOpenAIModerator(srv.URL, "sk-test", "")
	_, err := m.Flagged(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestOpenAIImageEditorMultipart(t *testing.T) {
	want := []byte("edited-png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "gpt-image-1" || r.FormValue("size") != "1024x1024" {
			t.Fatalf("unexpected form %v", r.MultipartForm.Value)
		}
		if r.FormValue("prompt") != "add sunglasses" {
			t.Fatalf("unexpected prompt %q", r.FormValue("prompt"))
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("image part: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "input-png" || hdr.Header.Get("Content-Type") != "image/png" {
			t.Fatalf("unexpected image part %q %q", data, hdr.Header.Get("Content-Type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(want)}},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIImageEditor(srv.URL, "sk-test", "", "999x999")
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	got, err := e.Edit(context.Background(), []byte("input-png"), "add sunglasses")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("edit returned %q", got)
	}
}

func TestOpenAIImageEditorEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()
	e, _ := NewOpenAIImageEditor(srv.URL, "sk-test", "", "")
	if _, err := e.Edit(context.Background(), []byte("x"), "p"); err == nil {
		t.Fatalf("expected error for empty data")
	}
}

func TestNormalizeImageSize(t *testing.T) {
	cases := map[string]string{
		"512x512":   "512x512",
		"1536x1024": "1536x1024",
		"AUTO":      "auto",
		"2048x2048": "1024x1024",
		"":          "1024x1024",
	}
	for in, want := range cases {
		if got := NormalizeImageSize(in); got != want {
			t.Fatalf("NormalizeImageSize(%q) = %q, want %q", in, got, want)
		}
	}
	if SquareSide("1536x1024") != 1536 || SquareSide("auto") != 1024 || SquareSide("256x256") != 256 {
		t.Fatalf("unexpected square sides")
	}
}

func TestOpenAICompatGeneratorSendsOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" || req.MaxTokens != 100 || req.Temperature != 0.3 {
			t.Fatalf("unexpected request %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("unexpected messages %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  add round glasses \n"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewTextGenerator(GeneratorConfig{
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
		Options: GenerationOptions{Temperature: 0.3, MaxTokens: 100},
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	got, err := gen.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "add round glasses" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestOllamaGeneratorChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"watercolor portrait"}}`))
	}))
	defer srv.Close()

	gen, err := NewTextGenerator(GeneratorConfig{Provider: "ollama", BaseURL: srv.URL, Model: "llama3"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	got, err := gen.GenerateText(context.Background(), "", "make it a painting")
	if err != nil || got != "watercolor portrait" {
		t.Fatalf("generate: %q %v", got, err)
	}
}

func TestNewTextGeneratorUnknownProvider(t *testing.T) {
	if _, err := NewTextGenerator(GeneratorConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestFirstImageBlob(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("here you go"),
				genai.Blob{MIMEType: "image/png", Data: []byte("png-bytes")},
			}},
		}},
	}
	got, err := firstImageBlob(resp)
	if err != nil || string(got) != "png-bytes" {
		t.Fatalf("firstImageBlob = %q, %v", got, err)
	}

	textOnly := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("cannot edit")}}}},
	}
	if _, err := firstImageBlob(textOnly); err == nil || !strings.Contains(err.Error(), "cannot edit") {
		t.Fatalf("expected text-only error, got %v", err)
	}
}
