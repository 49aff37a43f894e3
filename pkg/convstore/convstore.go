// Package convstore holds the mirrored assistant record and its message
// sequence in a document store, colocating conversation reads with writes.
// The authoritative assistant metadata lives in the relational store; this
// mirror exists only for the conversation history.
package convstore

import (
	"context"
	"errors"
	"time"

	"docassist/pkg/domain"
)

// ErrMirrorMissing is returned when a message operation targets an assistant
// whose mirror record does not exist, e.g. after a partially failed
// provisioning. Callers treat this as recoverable and retry provisioning.
var ErrMirrorMissing = errors.New("assistant mirror not found")

// ConversationStore persists assistant mirrors and their append-only message
// sequences, read ordered by creation time descending.
type ConversationStore interface {
	PutAssistant(ctx context.Context, assistant domain.Assistant) error
	// DeleteAssistant removes the message sub-collection before the mirror
	// itself so a failure never leaves orphaned messages behind a missing
	// parent.
	DeleteAssistant(ctx context.Context, assistantID string) error
	AppendMessage(ctx context.Context, assistantID string, msg domain.Message) error
	ListMessages(ctx context.Context, assistantID string) ([]domain.Message, error)
}

// assistantDoc mirrors the relational assistant record.
type assistantDoc struct {
	AssistantID string    `bson:"_id"`
	DocumentID  string    `bson:"document_id"`
	ThreadID    string    `bson:"thread_id"`
	CreatedAt   time.Time `bson:"created_at"`
}

type messageDoc struct {
	ID          string    `bson:"_id"`
	AssistantID string    `bson:"assistant_id"`
	ThreadID    string    `bson:"thread_id"`
	Role        string    `bson:"role"`
	Text        string    `bson:"text"`
	CreatedAt   time.Time `bson:"created_at"`
}
