package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusStore mirrors task delivery state into Redis so the API can report
// progress without touching the queue.
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusStore(addr, password string, ttl time.Duration) (*StatusStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    ttl,
	}, nil
}

func (s *StatusStore) Get(ctx context.Context, taskID string) (JobStatus, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return JobStatus{}, false, nil
	}
	data, err := s.client.HGetAll(ctx, s.key(taskID)).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	return decodeJobStatus(taskID, data), true, nil
}

func (s *StatusStore) put(ctx context.Context, job JobStatus) error {
	key := s.key(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"path":      job.Path,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return nil
}

func (s *StatusStore) mark(ctx context.Context, taskID, status, errMsg string, attempts int) {
	job, ok, err := s.Get(ctx, taskID)
	if err != nil {
		return
	}
	if !ok {
		job = JobStatus{ID: taskID, CreatedAt: time.Now().UTC()}
	}
	job.Status = status
	job.ErrorMessage = errMsg
	if attempts > 0 {
		job.Attempts = attempts
	}
	job.UpdatedAt = time.Now().UTC()
	_ = s.put(ctx, job)
}

func (s *StatusStore) key(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func decodeJobStatus(taskID string, data map[string]string) JobStatus {
	job := JobStatus{ID: taskID}
	job.Path = data["path"]
	job.Status = data["status"]
	job.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}
