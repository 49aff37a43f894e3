package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docassist/internal/util"
)

// RabbitDispatcher publishes work items to a durable RabbitMQ queue and
// mirrors their status into Redis.
type RabbitDispatcher struct {
	channel *amqp.Channel
	queue   string
	status  *StatusStore
}

// NewRabbitDispatcher connects, declares the durable queue, and returns the
// publisher side of the dispatcher.
func NewRabbitDispatcher(amqpURL, queue string, status *StatusStore) (*RabbitDispatcher, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("task queue name required")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitDispatcher{channel: channel, queue: queue, status: status}, nil
}

// Enqueue publishes one work item addressed to an HTTP task path.
func (d *RabbitDispatcher) Enqueue(ctx context.Context, path string, payload any) (JobStatus, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return JobStatus{}, err
	}
	task := Task{ID: util.NewID(), Path: path, Payload: raw}
	body, err := json.Marshal(task)
	if err != nil {
		return JobStatus{}, err
	}

	now := time.Now().UTC()
	job := JobStatus{
		ID:        task.ID,
		Path:      path,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.status != nil {
		if err := d.status.put(ctx, job); err != nil {
			return JobStatus{}, err
		}
	}
	if err := d.channel.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Body:         body,
	}); err != nil {
		return JobStatus{}, fmt.Errorf("publish task: %w", err)
	}
	return job, nil
}

// PushWorker consumes the queue and delivers each task to the worker's HTTP
// task path, Cloud-Tasks style: POST with the JSON payload as body and a
// signed token header. A 5xx response or transport error republishes the
// task until the retry cap; a 4xx response means the task itself was
// rejected and is marked failed without retrying.
type PushWorker struct {
	dispatcher *RabbitDispatcher
	baseURL    string
	signer     *TokenSigner
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

type PushWorkerConfig struct {
	Dispatcher *RabbitDispatcher
	BaseURL    string
	Signer     *TokenSigner
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

func NewPushWorker(cfg PushWorkerConfig) (*PushWorker, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("token signer required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("worker base URL required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		// Provisioning and summarization block on provider calls.
		timeout = 5 * time.Minute
	}
	return &PushWorker{
		dispatcher: cfg.Dispatcher,
		baseURL:    baseURL,
		signer:     cfg.Signer,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Start launches the consume loop; it returns once the consumer is
// registered and delivers in the background until ctx is done.
func (w *PushWorker) Start(ctx context.Context) error {
	deliveries, err := w.dispatcher.channel.Consume(w.dispatcher.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	go w.loop(ctx, deliveries)
	return nil
}

func (w *PushWorker) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, delivery)
		}
	}
}

func (w *PushWorker) handle(ctx context.Context, delivery amqp.Delivery) {
	var task Task
	if err := json.Unmarshal(delivery.Body, &task); err != nil || task.Path == "" {
		slog.Error("dropping malformed task", "messageId", delivery.MessageId, "err", err)
		_ = delivery.Ack(false)
		return
	}

	attempts := attemptsFrom(delivery.Headers) + 1
	status := w.dispatcher.status
	if status != nil {
		status.mark(ctx, task.ID, StatusProcessing, "", attempts)
	}

	err := w.deliver(ctx, task)
	if err == nil {
		if status != nil {
			status.mark(ctx, task.ID, StatusDone, "", attempts)
		}
		_ = delivery.Ack(false)
		return
	}

	var perm *permanentDeliveryError
	if errors.As(err, &perm) {
		slog.Error("task rejected by handler, not retrying", "taskId", task.ID, "path", task.Path, "status", perm.status, "err", err)
		if status != nil {
			status.mark(ctx, task.ID, StatusFailed, err.Error(), attempts)
		}
		_ = delivery.Ack(false)
		return
	}

	if attempts >= w.maxRetries {
		slog.Error("task failed permanently", "taskId", task.ID, "path", task.Path, "attempts", attempts, "err", err)
		if status != nil {
			status.mark(ctx, task.ID, StatusFailed, err.Error(), attempts)
		}
		_ = delivery.Ack(false)
		return
	}

	slog.Warn("task delivery failed, requeueing", "taskId", task.ID, "path", task.Path, "attempts", attempts, "err", err)
	if status != nil {
		status.mark(ctx, task.ID, StatusQueued, err.Error(), attempts)
	}
	select {
	case <-ctx.Done():
		_ = delivery.Nack(false, true)
		return
	case <-time.After(w.retryDelay):
	}
	if err := w.republish(ctx, task, attempts); err != nil {
		// Keep the original delivery alive for redelivery instead.
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

func (w *PushWorker) deliver(ctx context.Context, task Task) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+task.Path, bytes.NewReader(task.Payload))
	if err != nil {
		return err
	}
	token, err := w.signer.Sign(task.ID)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TaskTokenHeader, token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode < 500 {
			return &permanentDeliveryError{status: resp.StatusCode, msg: msg}
		}
		return fmt.Errorf("task handler error: %s", msg)
	}
	return nil
}

// permanentDeliveryError wraps a 4xx handler response: the task itself was
// rejected, so redelivery cannot change the outcome.
type permanentDeliveryError struct {
	status int
	msg    string
}

func (e *permanentDeliveryError) Error() string {
	return fmt.Sprintf("task handler rejected (%d): %s", e.status, e.msg)
}

func (w *PushWorker) republish(ctx context.Context, task Task, attempts int) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.dispatcher.channel.PublishWithContext(ctx, "", w.dispatcher.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Headers:      amqp.Table{"x-attempts": int32(attempts)},
		Body:         body,
	})
}

func attemptsFrom(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers["x-attempts"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
