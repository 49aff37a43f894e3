package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordedAck struct {
	acked  bool
	nacked bool
}

func (a *recordedAck) Ack(_ uint64, _ bool) error { a.acked = true; return nil }

func (a *recordedAck) Nack(_ uint64, _ bool, _ bool) error { a.nacked = true; return nil }

func (a *recordedAck) Reject(_ uint64, _ bool) error { return nil }

func newTestWorker(t *testing.T, handler http.Handler) (*PushWorker, *StatusStore) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	status := newTestStatusStore(t)
	signer, err := NewTokenSigner("test-task-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	worker := &PushWorker{
		dispatcher: &RabbitDispatcher{queue: "tasks", status: status},
		baseURL:    ts.URL,
		signer:     signer,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: 3,
		retryDelay: time.Millisecond,
	}
	return worker, status
}

func taskDelivery(t *testing.T, ack amqp.Acknowledger, task Task, priorAttempts int) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	headers := amqp.Table{}
	if priorAttempts > 0 {
		headers["x-attempts"] = int32(priorAttempts)
	}
	return amqp.Delivery{Acknowledger: ack, MessageId: task.ID, Headers: headers, Body: body}
}

func TestDeliverClassifiesHandlerResponses(t *testing.T) {
	worker, _ := newTestWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/create_assistant":
			w.WriteHeader(http.StatusOK)
		case "/tasks/create_message":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"assistant not ready"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	ctx := context.Background()

	if err := worker.deliver(ctx, Task{ID: "t-1", Path: "/tasks/create_assistant"}); err != nil {
		t.Fatalf("deliver ok path: %v", err)
	}

	err := worker.deliver(ctx, Task{ID: "t-2", Path: "/tasks/create_message"})
	var perm *permanentDeliveryError
	if !errors.As(err, &perm) {
		t.Fatalf("conflict response not permanent: %v", err)
	}
	if perm.status != http.StatusConflict || !strings.Contains(err.Error(), "assistant not ready") {
		t.Fatalf("permanent error = %v", err)
	}

	err = worker.deliver(ctx, Task{ID: "t-3", Path: "/tasks/summarise_document"})
	if err == nil || errors.As(err, &perm) {
		t.Fatalf("server error should be retryable, got %v", err)
	}
}

func TestHandleMarksRejectedTaskFailedWithoutRetry(t *testing.T) {
	var calls int
	worker, status := newTestWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"document not found"}`))
	}))
	ctx := context.Background()
	task := Task{ID: "task-404", Path: "/tasks/create_assistant", Payload: json.RawMessage(`{"documentId":"doc-1"}`)}

	ack := &recordedAck{}
	worker.handle(ctx, taskDelivery(t, ack, task, 0))

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if !ack.acked || ack.nacked {
		t.Fatalf("delivery ack = %+v, want acked without nack", ack)
	}
	job, ok, err := status.Get(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("status get: ok=%v err=%v", ok, err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", job.Status, StatusFailed)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}
	if !strings.Contains(job.ErrorMessage, "document not found") {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
}

func TestHandleFailsServerErrorAtRetryCap(t *testing.T) {
	worker, status := newTestWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"provider unavailable"}`))
	}))
	ctx := context.Background()
	task := Task{ID: "task-502", Path: "/tasks/summarise_document", Payload: json.RawMessage(`{"documentId":"doc-1"}`)}

	ack := &recordedAck{}
	worker.handle(ctx, taskDelivery(t, ack, task, worker.maxRetries-1))

	if !ack.acked {
		t.Fatalf("delivery not acked at retry cap")
	}
	job, ok, err := status.Get(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("status get: ok=%v err=%v", ok, err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", job.Status, StatusFailed)
	}
	if job.Attempts != worker.maxRetries {
		t.Fatalf("attempts = %d, want %d", job.Attempts, worker.maxRetries)
	}
}

func TestHandleDropsMalformedTask(t *testing.T) {
	worker, _ := newTestWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("handler should not be called")
	}))
	ack := &recordedAck{}
	worker.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})
	if !ack.acked {
		t.Fatalf("malformed delivery not acked")
	}
}
