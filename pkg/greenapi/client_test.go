package greenapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"selfiebot/pkg/domain"
)

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/waInstance1101/sendMessage/tok123" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["chatId"] != "79990001122@c.us" || body["message"] != "Upload a selfie." {
			t.Fatalf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"idMessage":"abc"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "1101", "tok123")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.SendText(context.Background(), "79990001122", "Upload a selfie."); err != nil {
		t.Fatalf("send text: %v", err)
	}
}

func TestSendImageMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendFileByUpload/tok123") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("chatId") != "79990001122@c.us" || r.FormValue("caption") != "Here is the result." {
			t.Fatalf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "0001_2.png" || string(data) != "png" {
			t.Fatalf("unexpected file %q %q", hdr.Filename, data)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "1101", "tok123")
	if err := c.SendImage(context.Background(), "79990001122", "79990001122/0001_2.png", []byte("png"), "Here is the result."); err != nil {
		t.Fatalf("send image: %v", err)
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("instance not authorized"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "1101", "tok123")
	err := c.SendText(context.Background(), "u1", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected APIError 403, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "1101", "tok123")
	data, err := c.Download(context.Background(), srv.URL+"/media/1.jpg")
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("download: %q %v", data, err)
	}
	if _, err := c.Download(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient("", "1", "t"); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := NewClient("http://x", "", "t"); err == nil {
		t.Fatalf("expected error for empty instance")
	}
}

func TestParseWebhookEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.InboundEvent
	}{
		{
			name: "text",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"M1","senderData":{"chatId":"79990001122@c.us"},"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":" List "}}}`,
			want: domain.InboundEvent{UserID: "79990001122", MessageID: "M1", Kind: domain.KindText, Text: " List "},
		},
		{
			name: "extended text",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"M2","senderData":{"chatId":"7@c.us"},"messageData":{"typeMessage":"extendedTextMessage","extendedTextMessageData":{"text":"menu"}}}`,
			want: domain.InboundEvent{UserID: "7", MessageID: "M2", Kind: domain.KindText, Text: "menu"},
		},
		{
			name: "image",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"M3","senderData":{"chatId":"7@c.us"},"messageData":{"typeMessage":"imageMessage","fileMessageData":{"downloadUrl":"https://x/1.png","mimeType":"image/png"}}}`,
			want: domain.InboundEvent{UserID: "7", MessageID: "M3", Kind: domain.KindImage, DownloadURL: "https://x/1.png", MimeType: "image/png"},
		},
		{
			name: "sticker",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"M4","senderData":{"chatId":"7@c.us"},"messageData":{"typeMessage":"stickerMessage"}}`,
			want: domain.InboundEvent{UserID: "7", MessageID: "M4", Kind: domain.KindOther},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wh, err := ParseWebhook([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := wh.Event(); got != tc.want {
				t.Fatalf("event = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":""},"messageData":{}}`,
		`{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"7@c.us"}}`,
	} {
		if _, err := ParseWebhook([]byte(body)); !errors.Is(err, ErrMalformedWebhook) {
			t.Fatalf("ParseWebhook(%q) err = %v", body, err)
		}
	}
}
