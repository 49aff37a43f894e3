package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"docassist/pkg/apperr"
	"docassist/pkg/domain"
)

func TestRegisterDocumentBuildsFileRef(t *testing.T) {
	ta := newTestApp(t)

	doc, err := ta.app.RegisterDocument(context.Background(), "user-1", "handbook", "the team handbook", "uploads/handbook.pdf")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if doc.FileRef != "s3://documents/uploads/handbook.pdf" {
		t.Fatalf("fileRef = %q, want %q", doc.FileRef, "s3://documents/uploads/handbook.pdf")
	}
	if doc.Status != domain.StatusPreparingAssistant {
		t.Fatalf("status = %q, want %q", doc.Status, domain.StatusPreparingAssistant)
	}
	if _, ok := ta.meta.docs[doc.ID]; !ok {
		t.Fatalf("document not persisted")
	}
}

func TestRegisterDocumentRequiresNameAndKey(t *testing.T) {
	ta := newTestApp(t)

	if _, err := ta.app.RegisterDocument(context.Background(), "user-1", " ", "d", "k"); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("blank name: kind = %q, want %q", apperr.KindOf(err), apperr.KindBadRequest)
	}
	if _, err := ta.app.RegisterDocument(context.Background(), "user-1", "n", "d", " "); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("blank key: kind = %q, want %q", apperr.KindOf(err), apperr.KindBadRequest)
	}
}

func TestGetOwnedDocumentEnforcesOwnership(t *testing.T) {
	ta := newTestApp(t)
	doc := ta.addPreparingDocument("doc-1", "user-1")

	if _, err := ta.app.GetOwnedDocument(context.Background(), "user-1", doc.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := ta.app.GetOwnedDocument(context.Background(), "user-2", doc.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("foreign read: kind = %q, want %q", apperr.KindOf(err), apperr.KindForbidden)
	}
	if _, err := ta.app.GetOwnedDocument(context.Background(), "user-1", "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing read: kind = %q, want %q", apperr.KindOf(err), apperr.KindNotFound)
	}
}

func TestRequestAssistantEnqueuesTask(t *testing.T) {
	ta := newTestApp(t)
	doc := ta.addPreparingDocument("doc-1", "user-1")

	job, err := ta.app.RequestAssistant(context.Background(), "user-1", doc.ID)
	if err != nil {
		t.Fatalf("request assistant: %v", err)
	}
	if job.Status != "queued" {
		t.Fatalf("job status = %q, want queued", job.Status)
	}
	if len(ta.tasks.enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(ta.tasks.enqueued))
	}
	task := ta.tasks.enqueued[0]
	if task.Path != TaskPathCreateAssistant {
		t.Fatalf("path = %q, want %q", task.Path, TaskPathCreateAssistant)
	}
	var payload struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.DocumentID != doc.ID {
		t.Fatalf("payload documentId = %q, want %q", payload.DocumentID, doc.ID)
	}
}

func TestRequestMessageRejectsPreparingDocument(t *testing.T) {
	ta := newTestApp(t)
	doc := ta.addPreparingDocument("doc-1", "user-1")

	_, err := ta.app.RequestMessage(context.Background(), "user-1", doc.ID, "hello")
	if apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("kind = %q, want %q", apperr.KindOf(err), apperr.KindInvalidState)
	}
	if len(ta.tasks.enqueued) != 0 {
		t.Fatalf("task enqueued despite status gate")
	}
}

func TestRequestMessageEnqueuesWithText(t *testing.T) {
	ta := newTestApp(t)
	doc, _ := ta.addReadyDocument("doc-1", "user-1")

	if _, err := ta.app.RequestMessage(context.Background(), "user-1", doc.ID, "what is chapter 2 about?"); err != nil {
		t.Fatalf("request message: %v", err)
	}
	var payload struct {
		DocumentID string `json:"documentId"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(ta.tasks.enqueued[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Message != "what is chapter 2 about?" {
		t.Fatalf("payload message = %q", payload.Message)
	}
}

func TestListMessagesRequiresReadyAssistant(t *testing.T) {
	ta := newTestApp(t)
	doc := ta.addPreparingDocument("doc-1", "user-1")

	_, err := ta.app.ListMessages(context.Background(), "user-1", doc.ID)
	if apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("kind = %q, want %q", apperr.KindOf(err), apperr.KindInvalidState)
	}
}

func TestListMessagesReturnsConversation(t *testing.T) {
	ta := newTestApp(t)
	doc, assistant := ta.addReadyDocument("doc-1", "user-1")
	ta.conv.messages[assistant.AssistantID] = []domain.Message{
		domain.NewMessage(assistant.ThreadID, domain.RoleUser, "hello", ta.now),
		domain.NewMessage(assistant.ThreadID, domain.RoleAssistant, "hi", ta.now.Add(time.Second)),
		domain.NewMessage(assistant.ThreadID, domain.RoleUser, "latest question", ta.now.Add(time.Minute)),
	}

	msgs, err := ta.app.ListMessages(context.Background(), "user-1", doc.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[0].Text != "latest question" || msgs[2].Text != "hello" {
		t.Fatalf("messages not newest first: %q, %q, %q", msgs[0].Text, msgs[1].Text, msgs[2].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Fatalf("message %d newer than message %d", i, i-1)
		}
	}
}

func TestUpdateDocumentMeta(t *testing.T) {
	ta := newTestApp(t)
	doc := ta.addPreparingDocument("doc-1", "user-1")

	updated, err := ta.app.UpdateDocumentMeta(context.Background(), "user-1", doc.ID, "renamed", "new description")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "renamed" || updated.Description != "new description" {
		t.Fatalf("updated = %+v", updated)
	}
	if got := ta.meta.docs[doc.ID]; got.Name != "renamed" {
		t.Fatalf("persisted name = %q, want renamed", got.Name)
	}
}
