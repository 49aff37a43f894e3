package domain

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusPreparingAssistant DocumentStatus = "preparing_assistant"
	StatusAssistantReady     DocumentStatus = "assistant_ready"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Document is the authoritative record for an uploaded file. FileRef is a
// URI of the form scheme://bucket/key pointing into object storage.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	FileRef     string         `json:"-"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewDocument creates a document awaiting assistant provisioning.
func NewDocument(ownerID, name, description, fileRef string, now time.Time) Document {
	return Document{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		FileRef:     fileRef,
		Status:      StatusPreparingAssistant,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Update replaces the user-editable fields.
func (d *Document) Update(name, description string, now time.Time) {
	d.Name = name
	d.Description = description
	d.UpdatedAt = now
}

// UpdateStatus moves the document through the provisioning state machine.
func (d *Document) UpdateStatus(status DocumentStatus, now time.Time) {
	d.Status = status
	d.UpdatedAt = now
}

// Assistant pairs a document with its remote provider resources. There is at
// most one assistant per document; DocumentID is the primary key.
type Assistant struct {
	DocumentID  string    `json:"documentId"`
	AssistantID string    `json:"assistantId"`
	ThreadID    string    `json:"threadId"`
	UsedAt      time.Time `json:"usedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewAssistant binds freshly created provider handles to a document.
func NewAssistant(documentID, assistantID, threadID string, now time.Time) Assistant {
	return Assistant{
		DocumentID:  documentID,
		AssistantID: assistantID,
		ThreadID:    threadID,
		UsedAt:      now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Use advances the expiry heartbeat.
func (a *Assistant) Use(now time.Time) {
	a.UsedAt = now
	a.UpdatedAt = now
}

// Message is one conversation turn. Messages are append-only.
type Message struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"threadId"`
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewMessage creates a conversation turn with a generated id.
func NewMessage(threadID string, role MessageRole, text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}
}

// DocumentSummary is one part of a generated summary set. Index gives chunk
// order; the whole set for a document is replaced atomically on each run.
type DocumentSummary struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Text       string    `json:"text"`
	Index      int       `json:"index"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewDocumentSummary creates a summary part for a document chunk.
func NewDocumentSummary(documentID, text string, index int, now time.Time) DocumentSummary {
	return DocumentSummary{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Text:       text,
		Index:      index,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
