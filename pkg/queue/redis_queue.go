package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"selfiebot/internal/util"
)

const (
	StatusScheduled  = "scheduled"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// ErrJobFailed is returned by Wait when the job exhausted its retries.
var ErrJobFailed = errors.New("job failed")

// JobStatus is the persisted state of a job. Payload holds the JSON-encoded job body.
type JobStatus struct {
	ID           string    `json:"id"`
	Payload      string    `json:"payload"`
	Status       string    `json:"status"`
	Result       string    `json:"result,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	RunAt        time.Time `json:"runAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Decode unmarshals the payload into v.
func (j JobStatus) Decode(v any) error {
	if strings.TrimSpace(j.Payload) == "" {
		return errors.New("empty job payload")
	}
	return json.Unmarshal([]byte(j.Payload), v)
}

// Handler processes one delivery of a job.
type Handler func(context.Context, JobStatus) error

type RedisJobQueue struct {
	client          redis.UniversalClient
	stream          string
	group           string
	consumerBase    string
	jobTTL          time.Duration
	maxRetries      int
	block           time.Duration
	claimIdle       time.Duration
	retryDelay      time.Duration
	promoteInterval time.Duration
	pollInterval    time.Duration
	maxLen          int64
	readCount       int64
	claimCount      int64
	once            sync.Once
}

type RedisQueueConfig struct {
	// Client is reused when set; otherwise Addr/Password are dialed.
	Client          redis.UniversalClient
	Addr            string
	Password        string
	Stream          string
	Group           string
	Consumer        string
	JobTTL          time.Duration
	MaxRetries      int
	Block           time.Duration
	ClaimIdle       time.Duration
	RetryDelay      time.Duration
	PromoteInterval time.Duration
	PollInterval    time.Duration
	MaxLen          int64
	ReadCount       int64
	ClaimCount      int64
}

func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	client := cfg.Client
	if client == nil {
		addr := strings.TrimSpace(cfg.Addr)
		if addr == "" {
			return nil, errors.New("redis addr required")
		}
		client = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password})
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	promoteInterval := cfg.PromoteInterval
	if promoteInterval <= 0 {
		promoteInterval = time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisJobQueue{
		client:          client,
		stream:          stream,
		group:           group,
		consumerBase:    consumer,
		jobTTL:          jobTTL,
		maxRetries:      maxRetries,
		block:           block,
		claimIdle:       claimIdle,
		retryDelay:      retryDelay,
		promoteInterval: promoteInterval,
		pollInterval:    pollInterval,
		maxLen:          maxLen,
		readCount:       readCount,
		claimCount:      claimCount,
	}, nil
}

// MaxRetries is the number of deliveries after which a job is marked failed.
func (q *RedisJobQueue) MaxRetries() int {
	return q.maxRetries
}

// Ping checks connectivity to Redis.
func (q *RedisJobQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue makes a job available to consumers immediately.
func (q *RedisJobQueue) Enqueue(ctx context.Context, payload any) (JobStatus, error) {
	job, err := q.newJob(payload, StatusQueued, time.Time{})
	if err != nil {
		return JobStatus{}, err
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	if err := q.client.XAdd(ctx, q.xaddArgs(job.ID, job.Payload)).Err(); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

// EnqueueAt schedules a job for delivery at the given time.
// Jobs whose time has already passed are delivered on the next promotion tick.
func (q *RedisJobQueue) EnqueueAt(ctx context.Context, payload any, at time.Time) (JobStatus, error) {
	job, err := q.newJob(payload, StatusScheduled, at.UTC())
	if err != nil {
		return JobStatus{}, err
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: job.ID,
	}).Err(); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) newJob(payload any, status string, runAt time.Time) (JobStatus, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return JobStatus{}, errors.New("job payload required")
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return JobStatus{}, fmt.Errorf("encode job payload: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return JobStatus{}, errors.New("job payload required")
	}
	now := time.Now().UTC()
	return JobStatus{
		ID:        util.NewID(),
		Payload:   string(raw),
		Status:    status,
		RunAt:     runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// SetResult attaches a result string to a job; it survives the final status write.
func (q *RedisJobQueue) SetResult(ctx context.Context, jobID, result string) error {
	key := q.jobKey(jobID)
	if err := q.client.HSet(ctx, key, "result", result).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

// Wait polls the job until it is done or failed, or ctx ends.
func (q *RedisJobQueue) Wait(ctx context.Context, jobID string) (JobStatus, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		job, ok, err := q.GetJob(ctx, jobID)
		if err != nil {
			return JobStatus{}, err
		}
		if ok {
			switch job.Status {
			case StatusDone:
				return job, nil
			case StatusFailed:
				return job, fmt.Errorf("%w: %s", ErrJobFailed, job.ErrorMessage)
			}
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start launches consumers and the delayed-job promoter. They stop when ctx ends.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
	go q.promoteLoop(ctx)
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("queue group create failed", "stream", q.stream, "group", q.group, "err", err)
		}
	})
}

func (q *RedisJobQueue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(q.promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := q.promoteDue(ctx, now); err != nil && ctx.Err() == nil {
				slog.Warn("queue promote failed", "stream", q.stream, "err", err)
			}
		}
	}
}

// promoteDue moves due delayed jobs onto the stream. ZREM acts as the claim so
// that concurrent promoters never deliver a job twice.
func (q *RedisJobQueue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: q.claimCount * 10,
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		job, ok, err := q.GetJob(ctx, id)
		if err != nil {
			return promoted, err
		}
		if !ok {
			continue
		}
		job.Status = StatusQueued
		job.UpdatedAt = time.Now().UTC()
		if err := q.writeStatus(ctx, job); err != nil {
			return promoted, err
		}
		if err := q.client.XAdd(ctx, q.xaddArgs(job.ID, job.Payload)).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			slog.Warn("queue read failed", "stream", q.stream, "consumer", consumer, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(q.retryDelay):
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	payload, _ := msg.Values["payload"].(string)
	if jobID == "" || payload == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID, payload)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger := slog.Default().With("stream", q.stream, "job_id", jobID, "attempt", job.Attempts)
	err = handler(util.ContextWithLogger(ctx, logger), job)
	if err == nil {
		_ = q.markDone(ctx, jobID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if job.Attempts >= q.maxRetries {
		logger.Error("job failed", "err", err)
		_ = q.markFailed(ctx, jobID, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger.Warn("job attempt failed, requeueing", "err", err)
	_ = q.markQueued(ctx, jobID, err.Error())
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, jobID, payload)
}

func (q *RedisJobQueue) xaddArgs(jobID, payload string) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":  jobID,
			"payload": payload,
		},
	}
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) requeueAndAck(ctx context.Context, msgID, jobID, payload string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.xaddArgs(jobID, payload))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) markProcessing(ctx context.Context, jobID, payload string) (JobStatus, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if job.ID == "" {
		job = JobStatus{ID: jobID}
	}
	if payload != "" {
		job.Payload = payload
	}
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	return q.updateStatus(ctx, jobID, StatusQueued, errMsg)
}

func (q *RedisJobQueue) markDone(ctx context.Context, jobID string) error {
	return q.updateStatus(ctx, jobID, StatusDone, "")
}

func (q *RedisJobQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	return q.updateStatus(ctx, jobID, StatusFailed, errMsg)
}

func (q *RedisJobQueue) updateStatus(ctx context.Context, jobID, status, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, job JobStatus) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"payload":   job.Payload,
		"status":    job.Status,
		"result":    job.Result,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !job.RunAt.IsZero() {
		payload["runAt"] = job.RunAt.Format(time.RFC3339Nano)
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func (q *RedisJobQueue) delayedKey() string {
	return q.stream + ":delayed"
}

func decodeJobStatus(jobID string, data map[string]string) JobStatus {
	job := JobStatus{
		ID:           jobID,
		Payload:      data["payload"],
		Status:       data["status"],
		Result:       data["result"],
		ErrorMessage: data["error"],
	}
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["runAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.RunAt = t
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
