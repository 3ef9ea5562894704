package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"
)

const maxDownloadBytes = 25 << 20

// ChatSuffix is appended to phone numbers to form personal chat ids.
const ChatSuffix = "@c.us"

// APIError represents a non-2xx GreenAPI response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("greenapi: %d %s", e.Status, e.Message)
}

// Client calls the GreenAPI WhatsApp REST API for one instance.
type Client struct {
	baseURL    string
	instanceID string
	token      string
	httpClient *http.Client
}

// NewClient constructs a GreenAPI client.
func NewClient(baseURL, instanceID, token string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("greenapi base url required")
	}
	if strings.TrimSpace(instanceID) == "" || strings.TrimSpace(token) == "" {
		return nil, errors.New("greenapi instance id and token required")
	}
	return &Client{
		baseURL:    baseURL,
		instanceID: strings.TrimSpace(instanceID),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// ChatID turns a user id into a personal chat id.
func ChatID(userID string) string {
	if strings.HasSuffix(userID, ChatSuffix) {
		return userID
	}
	return userID + ChatSuffix
}

// UserID strips the personal chat suffix.
func UserID(chatID string) string {
	return strings.TrimSuffix(strings.TrimSpace(chatID), ChatSuffix)
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, userID, message string) error {
	body, err := json.Marshal(map[string]string{"chatId": ChatID(userID), "message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// SendImage uploads an image with an optional caption.
func (c *Client) SendImage(ctx context.Context, userID, filename string, data []byte, caption string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("chatId", ChatID(userID)); err != nil {
		return err
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendFileByUpload"), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

// Download fetches inbound media from a GreenAPI download URL.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", maxDownloadBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty media download")
	}
	return data, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, method, c.token)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
