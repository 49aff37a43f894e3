package app

import (
	"context"
	"fmt"
	"strings"

	"docassist/pkg/apperr"
	"docassist/pkg/domain"
	"docassist/pkg/taskqueue"
)

// RegisterDocument records an already-uploaded object as a new document
// awaiting provisioning. objectKey is the object-store key of the upload.
func (a *App) RegisterDocument(ctx context.Context, ownerID, name, description, objectKey string) (domain.Document, error) {
	name = strings.TrimSpace(name)
	objectKey = strings.TrimSpace(objectKey)
	if name == "" {
		return domain.Document{}, apperr.New(apperr.KindBadRequest, "name required")
	}
	if objectKey == "" {
		return domain.Document{}, apperr.New(apperr.KindBadRequest, "object key required")
	}
	fileRef := fmt.Sprintf("s3://%s/%s", a.bucket, objectKey)
	doc := domain.NewDocument(ownerID, name, description, fileRef, a.now())
	if err := a.meta.CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, apperr.Wrap(apperr.KindInternal, err, "create document")
	}
	return doc, nil
}

// GetOwnedDocument loads a document and enforces ownership.
func (a *App) GetOwnedDocument(ctx context.Context, ownerID, documentID string) (domain.Document, error) {
	doc, ok, err := a.meta.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, apperr.Wrap(apperr.KindInternal, err, "load document")
	}
	if !ok {
		return domain.Document{}, apperr.New(apperr.KindNotFound, "document not found: %s", documentID)
	}
	if doc.OwnerID != ownerID {
		return domain.Document{}, apperr.New(apperr.KindForbidden, "document %s is not owned by caller", documentID)
	}
	return doc, nil
}

// UpdateDocumentMeta replaces a document's name and description.
func (a *App) UpdateDocumentMeta(ctx context.Context, ownerID, documentID, name, description string) (domain.Document, error) {
	doc, err := a.GetOwnedDocument(ctx, ownerID, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Document{}, apperr.New(apperr.KindBadRequest, "name required")
	}
	doc.Update(name, description, a.now())
	if err := a.meta.UpdateDocument(ctx, doc); err != nil {
		return domain.Document{}, apperr.Wrap(apperr.KindInternal, err, "update document")
	}
	return doc, nil
}

// RequestAssistant enqueues provisioning for a document.
func (a *App) RequestAssistant(ctx context.Context, ownerID, documentID string) (taskqueue.JobStatus, error) {
	if _, err := a.GetOwnedDocument(ctx, ownerID, documentID); err != nil {
		return taskqueue.JobStatus{}, err
	}
	job, err := a.tasks.Enqueue(ctx, TaskPathCreateAssistant, createAssistantTask{DocumentID: documentID})
	if err != nil {
		return taskqueue.JobStatus{}, apperr.Wrap(apperr.KindInternal, err, "enqueue provisioning")
	}
	return job, nil
}

// RequestMessage enqueues one conversation exchange. The status gate here
// fails fast; the exchange re-checks it at delivery time.
func (a *App) RequestMessage(ctx context.Context, ownerID, documentID, text string) (taskqueue.JobStatus, error) {
	if strings.TrimSpace(text) == "" {
		return taskqueue.JobStatus{}, apperr.New(apperr.KindBadRequest, "message required")
	}
	doc, err := a.GetOwnedDocument(ctx, ownerID, documentID)
	if err != nil {
		return taskqueue.JobStatus{}, err
	}
	if doc.Status != domain.StatusAssistantReady {
		return taskqueue.JobStatus{}, apperr.New(apperr.KindInvalidState, "assistant not ready for document %s", documentID)
	}
	job, err := a.tasks.Enqueue(ctx, TaskPathCreateMessage, createMessageTask{DocumentID: documentID, Message: text})
	if err != nil {
		return taskqueue.JobStatus{}, apperr.Wrap(apperr.KindInternal, err, "enqueue message")
	}
	return job, nil
}

// RequestSummaries enqueues a summarization run.
func (a *App) RequestSummaries(ctx context.Context, ownerID, documentID string) (taskqueue.JobStatus, error) {
	if _, err := a.GetOwnedDocument(ctx, ownerID, documentID); err != nil {
		return taskqueue.JobStatus{}, err
	}
	job, err := a.tasks.Enqueue(ctx, TaskPathSummariseDocument, summariseDocumentTask{DocumentID: documentID})
	if err != nil {
		return taskqueue.JobStatus{}, apperr.Wrap(apperr.KindInternal, err, "enqueue summarization")
	}
	return job, nil
}

// ListMessages returns the conversation history, newest first.
func (a *App) ListMessages(ctx context.Context, ownerID, documentID string) ([]domain.Message, error) {
	doc, err := a.GetOwnedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusAssistantReady {
		return nil, apperr.New(apperr.KindInvalidState, "assistant not ready for document %s", documentID)
	}
	assistant, ok, err := a.meta.GetAssistant(ctx, documentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "load assistant")
	}
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "assistant not found: %s", documentID)
	}
	messages, err := a.conv.ListMessages(ctx, assistant.AssistantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list messages")
	}
	return messages, nil
}

// ListSummaries returns the stored summary set in chunk order.
func (a *App) ListSummaries(ctx context.Context, ownerID, documentID string) ([]domain.DocumentSummary, error) {
	if _, err := a.GetOwnedDocument(ctx, ownerID, documentID); err != nil {
		return nil, err
	}
	summaries, err := a.meta.ListSummaries(ctx, documentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list summaries")
	}
	return summaries, nil
}
