package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"selfiebot/internal/util"
	"selfiebot/pkg/queue"
)

// Classifier decides whether an image contains a human face.
type Classifier interface {
	HasFace(ctx context.Context, image []byte) (bool, error)
}

// Disabled accepts every image.
type Disabled struct{}

func (Disabled) HasFace(context.Context, []byte) (bool, error) { return true, nil }

// Params tune the detector model.
type Params struct {
	Model     string  `json:"model" yaml:"model"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	InputSize int     `json:"inputSize" yaml:"inputSize"`
}

// WithDefaults fills unset fields.
func (p Params) WithDefaults() Params {
	if strings.TrimSpace(p.Model) == "" {
		p.Model = "ssd"
	}
	if p.Threshold <= 0 {
		p.Threshold = 0.5
	}
	if p.InputSize <= 0 {
		p.InputSize = 416
	}
	return p
}

// Job is the face-detection queue payload.
type Job struct {
	ImageB64 string `json:"imageB64"`
	Params
}

// Image decodes the job image.
func (j Job) Image() ([]byte, error) {
	return base64.StdEncoding.DecodeString(j.ImageB64)
}

// JobQueue is the subset of the job queue used to run detections remotely.
type JobQueue interface {
	Enqueue(ctx context.Context, payload any) (queue.JobStatus, error)
	Wait(ctx context.Context, jobID string) (queue.JobStatus, error)
}

// QueueClassifier hands detection to a worker and waits for the verdict.
// Any failure, including the wait timeout, is reported as "no face".
type QueueClassifier struct {
	queue   JobQueue
	params  Params
	timeout time.Duration
}

func NewQueueClassifier(q JobQueue, params Params, timeout time.Duration) *QueueClassifier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &QueueClassifier{queue: q, params: params.WithDefaults(), timeout: timeout}
}

func (c *QueueClassifier) HasFace(ctx context.Context, image []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	job, err := c.queue.Enqueue(ctx, Job{
		ImageB64: base64.StdEncoding.EncodeToString(image),
		Params:   c.params,
	})
	if err != nil {
		return false, fmt.Errorf("enqueue face job: %w", err)
	}
	done, err := c.queue.Wait(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("wait face job %s: %w", job.ID, err)
	}
	return ParseResult(done.Result), nil
}

// FormatResult encodes a verdict for the job result field.
func FormatResult(hasFace bool) string {
	return strconv.FormatBool(hasFace)
}

// ParseResult decodes a job result; anything but "true" is "no face".
func ParseResult(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// HTTPDetector calls an external face-detection service.
// POST {url} {"image": b64, "model", "threshold", "inputSize"} -> {"faces": n}
type HTTPDetector struct {
	url        string
	httpClient *http.Client
}

func NewHTTPDetector(url string) (*HTTPDetector, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("face detector url required")
	}
	return &HTTPDetector{url: url, httpClient: &http.Client{Timeout: 45 * time.Second}}, nil
}

// Detect returns whether at least one face scores above the threshold.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte, params Params) (bool, error) {
	params = params.WithDefaults()
	body, err := json.Marshal(map[string]any{
		"image":     base64.StdEncoding.EncodeToString(image),
		"model":     params.Model,
		"threshold": params.Threshold,
		"inputSize": params.InputSize,
	})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("face detector request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("face detector error: %s", resp.Status)
	}
	var out struct {
		Faces []struct {
			Score float64 `json:"score"`
		} `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("face detector decode: %w", err)
	}
	for _, f := range out.Faces {
		if f.Score >= params.Threshold {
			return true, nil
		}
	}
	return false, nil
}

// HasFace makes HTTPDetector usable in-process as a Classifier.
func (d *HTTPDetector) HasFace(ctx context.Context, image []byte) (bool, error) {
	return d.Detect(ctx, image, Params{})
}

// FailClosed wraps a classifier so errors become "no face" and are logged.
func FailClosed(ctx context.Context, c Classifier, image []byte) bool {
	ok, err := c.HasFace(ctx, image)
	if err != nil {
		util.LoggerFromContext(ctx).Error("face detection failed", "err", err)
		return false
	}
	return ok
}
