package store

import (
	"context"
	"time"

	"docassist/pkg/domain"
)

// MetadataStore defines the relational persistence operations for documents,
// assistants and summaries. The document status column is the source of truth
// for the provisioning state machine, and the assistant table is keyed by
// document id so at most one assistant can ever exist per document.
type MetadataStore interface {
	// documents
	CreateDocument(ctx context.Context, doc domain.Document) error
	GetDocument(ctx context.Context, id string) (domain.Document, bool, error)
	UpdateDocument(ctx context.Context, doc domain.Document) error
	DeleteDocument(ctx context.Context, id string) error

	// assistants
	GetAssistant(ctx context.Context, documentID string) (domain.Assistant, bool, error)
	UpdateAssistant(ctx context.Context, assistant domain.Assistant) error
	// CreateAssistantReady inserts the assistant row and flips the document
	// status in a single transaction.
	CreateAssistantReady(ctx context.Context, assistant domain.Assistant, doc domain.Document) error
	// DeleteAssistantAndDocument removes both rows in a single transaction.
	DeleteAssistantAndDocument(ctx context.Context, documentID string) error
	// DeleteAssistantAndDowngrade removes the assistant row and writes the
	// downgraded document in a single transaction, returning the document to
	// a provisionable state.
	DeleteAssistantAndDowngrade(ctx context.Context, documentID string, doc domain.Document) error
	FindStaleAssistants(ctx context.Context, usedBefore time.Time) ([]StaleAssistant, error)

	// summaries
	ReplaceSummaries(ctx context.Context, documentID string, summaries []domain.DocumentSummary) error
	ListSummaries(ctx context.Context, documentID string) ([]domain.DocumentSummary, error)
}

// StaleAssistant pairs an expired assistant with its owning document.
type StaleAssistant struct {
	Assistant domain.Assistant
	Document  domain.Document
}
