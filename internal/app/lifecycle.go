package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docassist/internal/util"
	"docassist/pkg/apperr"
	"docassist/pkg/convstore"
	"docassist/pkg/domain"
	"docassist/pkg/storage"
)

// ProvisionAssistant creates the remote assistant for a document and flips it
// to ready. Deliveries are at-least-once; the existence check plus the
// document-id primary key on the assistant table make duplicate runs no-ops.
//
// Ordering: the provider resource is created before the relational commit
// that marks the document ready, so a client observing AssistantReady can
// always reach a real resource. The cost is that a failed commit orphans the
// provider resource; that leak is logged, not repaired here.
func (a *App) ProvisionAssistant(ctx context.Context, documentID string) error {
	logger := util.LoggerFromContext(ctx)
	now := a.now()

	if _, ok, err := a.meta.GetAssistant(ctx, documentID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load assistant")
	} else if ok {
		logger.Info("assistant already provisioned", "documentId", documentID)
		return nil
	}

	doc, ok, err := a.meta.GetDocument(ctx, documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load document")
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found: %s", documentID)
	}
	doc.UpdateStatus(domain.StatusAssistantReady, now)

	key, ok := storage.ExtractKey(doc.FileRef)
	if !ok {
		return apperr.New(apperr.KindInvalidReference, "unparseable file reference: %s", doc.FileRef)
	}
	scratch := a.scratchPath(doc.ID)
	if err := a.objects.Download(ctx, key, scratch); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "download document file")
	}
	defer os.Remove(scratch)

	assistantID, threadID, err := a.provider.CreateAssistant(ctx, doc.ID, scratch)
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "create provider assistant")
	}

	assistant := domain.NewAssistant(doc.ID, assistantID, threadID, now)
	if err := a.meta.CreateAssistantReady(ctx, assistant, doc); err != nil {
		// The provider resource now exists with no row referencing it.
		logger.Error("assistant commit failed, provider resource orphaned",
			"documentId", doc.ID, "assistantId", assistantID, "err", err)
		return apperr.Wrap(apperr.KindInternal, err, "commit assistant")
	}
	if err := a.conv.PutAssistant(ctx, assistant); err != nil {
		// The document is ready without a conversation mirror; message
		// operations will fail recoverably until this is retried.
		return apperr.Wrap(apperr.KindInternal, err, "mirror assistant")
	}

	logger.Info("assistant provisioned", "documentId", doc.ID, "assistantId", assistantID)
	return nil
}

// ExchangeMessage runs one question/answer turn against the assistant.
// The heartbeat persists before the provider call: a failed exchange still
// counts as usage, which only affects expiry timing.
func (a *App) ExchangeMessage(ctx context.Context, documentID, text string) error {
	now := a.now()

	doc, ok, err := a.meta.GetDocument(ctx, documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load document")
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found: %s", documentID)
	}
	if doc.Status != domain.StatusAssistantReady {
		return apperr.New(apperr.KindInvalidState, "assistant not ready for document %s", documentID)
	}

	assistant, ok, err := a.meta.GetAssistant(ctx, documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load assistant")
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "assistant not found: %s", documentID)
	}

	assistant.Use(now)
	if err := a.meta.UpdateAssistant(ctx, assistant); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "persist assistant heartbeat")
	}

	userMsg := domain.NewMessage(assistant.ThreadID, domain.RoleUser, text, a.now())
	if err := a.conv.AppendMessage(ctx, assistant.AssistantID, userMsg); err != nil {
		if errors.Is(err, convstore.ErrMirrorMissing) {
			// Divergence from a partially failed provisioning; re-running
			// provisioning rebuilds the mirror.
			return apperr.Wrap(apperr.KindInvalidState, err, "conversation mirror missing for document %s", documentID)
		}
		return apperr.Wrap(apperr.KindInternal, err, "append user message")
	}

	answer, err := a.provider.Ask(ctx, assistant.AssistantID, assistant.ThreadID, text)
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "ask assistant")
	}

	reply := domain.NewMessage(assistant.ThreadID, domain.RoleAssistant, answer, a.now())
	if err := a.conv.AppendMessage(ctx, assistant.AssistantID, reply); err != nil {
		if errors.Is(err, convstore.ErrMirrorMissing) {
			return apperr.Wrap(apperr.KindInvalidState, err, "conversation mirror missing for document %s", documentID)
		}
		return apperr.Wrap(apperr.KindInternal, err, "append assistant message")
	}
	return nil
}

// DeleteDocument tears a document down: object file, provider resource,
// relational rows, conversation mirror, in that order. A failure after the
// object delete leaves the document without a backing file; that surfaces as
// an error rather than being repaired here.
func (a *App) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	doc, err := a.GetOwnedDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}

	key, ok := storage.ExtractKey(doc.FileRef)
	if !ok {
		return apperr.New(apperr.KindInvalidReference, "unparseable file reference: %s", doc.FileRef)
	}
	if err := a.objects.Delete(ctx, key); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete document file")
	}

	assistant, ok, err := a.meta.GetAssistant(ctx, documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load assistant")
	}
	if !ok {
		if err := a.meta.DeleteDocument(ctx, documentID); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "delete document")
		}
		return nil
	}

	if err := a.provider.DeleteAssistant(ctx, assistant.AssistantID); err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "delete provider assistant")
	}
	if err := a.meta.DeleteAssistantAndDocument(ctx, documentID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete assistant and document")
	}
	if err := a.conv.DeleteAssistant(ctx, assistant.AssistantID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete assistant mirror")
	}
	return nil
}

// SweepExpired expires assistants whose heartbeat is older than the
// staleness threshold, returning each document to a provisionable state.
// Failures are isolated per row; one bad assistant never blocks the batch.
func (a *App) SweepExpired(ctx context.Context) (int, error) {
	logger := util.LoggerFromContext(ctx)
	now := a.now()
	cutoff := now.Add(-a.assistantTTL)

	stale, err := a.meta.FindStaleAssistants(ctx, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, err, "find stale assistants")
	}

	swept := 0
	for _, row := range stale {
		if err := a.expireOne(ctx, row.Assistant, row.Document, now); err != nil {
			logger.Error("expiry failed for assistant",
				"documentId", row.Assistant.DocumentID,
				"assistantId", row.Assistant.AssistantID,
				"err", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		logger.Info("expiry sweep complete", "swept", swept, "candidates", len(stale))
	}
	return swept, nil
}

func (a *App) expireOne(ctx context.Context, assistant domain.Assistant, doc domain.Document, now time.Time) error {
	doc.UpdateStatus(domain.StatusPreparingAssistant, now)
	if err := a.provider.DeleteAssistant(ctx, assistant.AssistantID); err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "delete provider assistant")
	}
	if err := a.meta.DeleteAssistantAndDowngrade(ctx, assistant.DocumentID, doc); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "downgrade document")
	}
	// The mirror is already unreachable once the row is gone; its removal is
	// best-effort.
	if err := a.conv.DeleteAssistant(ctx, assistant.AssistantID); err != nil {
		util.LoggerFromContext(ctx).Warn("leaving stale assistant mirror",
			"assistantId", assistant.AssistantID, "err", err)
	}
	return nil
}

func (a *App) scratchPath(documentID string) string {
	return filepath.Join(a.scratchDir, fmt.Sprintf("%s_source.pdf", documentID))
}
