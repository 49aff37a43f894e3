package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"docassist/internal/util"
	"docassist/pkg/ai"
	"docassist/pkg/convstore"
	"docassist/pkg/domain"
	"docassist/pkg/store"
	"docassist/pkg/taskqueue"
)

type fakeMeta struct {
	docs       map[string]domain.Document
	assistants map[string]domain.Assistant
	summaries  map[string][]domain.DocumentSummary

	createAssistantReadyErr error
	updateAssistantErr      error
	replaceSummariesErr     error
	deleteAndDowngradeErr   map[string]error

	updateAssistantCalls int
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		docs:                  make(map[string]domain.Document),
		assistants:            make(map[string]domain.Assistant),
		summaries:             make(map[string][]domain.DocumentSummary),
		deleteAndDowngradeErr: make(map[string]error),
	}
}

func (m *fakeMeta) CreateDocument(_ context.Context, doc domain.Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *fakeMeta) GetDocument(_ context.Context, id string) (domain.Document, bool, error) {
	doc, ok := m.docs[id]
	return doc, ok, nil
}

func (m *fakeMeta) UpdateDocument(_ context.Context, doc domain.Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *fakeMeta) DeleteDocument(_ context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

func (m *fakeMeta) GetAssistant(_ context.Context, documentID string) (domain.Assistant, bool, error) {
	assistant, ok := m.assistants[documentID]
	return assistant, ok, nil
}

func (m *fakeMeta) UpdateAssistant(_ context.Context, assistant domain.Assistant) error {
	m.updateAssistantCalls++
	if m.updateAssistantErr != nil {
		return m.updateAssistantErr
	}
	m.assistants[assistant.DocumentID] = assistant
	return nil
}

func (m *fakeMeta) CreateAssistantReady(_ context.Context, assistant domain.Assistant, doc domain.Document) error {
	if m.createAssistantReadyErr != nil {
		return m.createAssistantReadyErr
	}
	if _, exists := m.assistants[assistant.DocumentID]; exists {
		return fmt.Errorf("duplicate assistant for document %s", assistant.DocumentID)
	}
	m.assistants[assistant.DocumentID] = assistant
	m.docs[doc.ID] = doc
	return nil
}

func (m *fakeMeta) DeleteAssistantAndDocument(_ context.Context, documentID string) error {
	delete(m.assistants, documentID)
	delete(m.summaries, documentID)
	delete(m.docs, documentID)
	return nil
}

func (m *fakeMeta) DeleteAssistantAndDowngrade(_ context.Context, documentID string, doc domain.Document) error {
	if err := m.deleteAndDowngradeErr[documentID]; err != nil {
		return err
	}
	delete(m.assistants, documentID)
	m.docs[doc.ID] = doc
	return nil
}

func (m *fakeMeta) FindStaleAssistants(_ context.Context, usedBefore time.Time) ([]store.StaleAssistant, error) {
	var stale []store.StaleAssistant
	for docID, assistant := range m.assistants {
		if assistant.UsedAt.Before(usedBefore) {
			stale = append(stale, store.StaleAssistant{Assistant: assistant, Document: m.docs[docID]})
		}
	}
	return stale, nil
}

func (m *fakeMeta) ReplaceSummaries(_ context.Context, documentID string, summaries []domain.DocumentSummary) error {
	if m.replaceSummariesErr != nil {
		return m.replaceSummariesErr
	}
	m.summaries[documentID] = summaries
	return nil
}

func (m *fakeMeta) ListSummaries(_ context.Context, documentID string) ([]domain.DocumentSummary, error) {
	return m.summaries[documentID], nil
}

type fakeConv struct {
	mirrors  map[string]domain.Assistant
	messages map[string][]domain.Message

	putErr    error
	appendErr error
	deleteErr error

	deleted []string
}

func newFakeConv() *fakeConv {
	return &fakeConv{
		mirrors:  make(map[string]domain.Assistant),
		messages: make(map[string][]domain.Message),
	}
}

func (c *fakeConv) PutAssistant(_ context.Context, assistant domain.Assistant) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.mirrors[assistant.AssistantID] = assistant
	return nil
}

func (c *fakeConv) DeleteAssistant(_ context.Context, assistantID string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.mirrors, assistantID)
	delete(c.messages, assistantID)
	c.deleted = append(c.deleted, assistantID)
	return nil
}

func (c *fakeConv) AppendMessage(_ context.Context, assistantID string, msg domain.Message) error {
	if c.appendErr != nil {
		return c.appendErr
	}
	if _, ok := c.mirrors[assistantID]; !ok {
		return convstore.ErrMirrorMissing
	}
	c.messages[assistantID] = append(c.messages[assistantID], msg)
	return nil
}

func (c *fakeConv) ListMessages(_ context.Context, assistantID string) ([]domain.Message, error) {
	msgs := append([]domain.Message(nil), c.messages[assistantID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs, nil
}

type fakeObjects struct {
	downloads []string
	deletes   []string

	downloadErr error
	deleteErr   error
}

func (o *fakeObjects) Download(_ context.Context, key, _ string) error {
	if o.downloadErr != nil {
		return o.downloadErr
	}
	o.downloads = append(o.downloads, key)
	return nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	if o.deleteErr != nil {
		return o.deleteErr
	}
	o.deletes = append(o.deletes, key)
	return nil
}

type fakeProvider struct {
	createCalls  int
	deleteCalls  []string
	askCalls     int
	answers      []string
	completions  []string
	createErr    error
	askErr       error
	deleteErr    map[string]error
	completeErr  error
	completeFrom []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{deleteErr: make(map[string]error)}
}

func (p *fakeProvider) CreateAssistant(_ context.Context, name, _ string) (string, string, error) {
	if p.createErr != nil {
		return "", "", p.createErr
	}
	p.createCalls++
	return "asst-" + name, "thread-" + name, nil
}

func (p *fakeProvider) Ask(_ context.Context, _, _, _ string) (string, error) {
	if p.askErr != nil {
		return "", p.askErr
	}
	p.askCalls++
	if len(p.answers) > 0 {
		answer := p.answers[0]
		p.answers = p.answers[1:]
		return answer, nil
	}
	return "answer", nil
}

func (p *fakeProvider) DeleteAssistant(_ context.Context, assistantID string) error {
	if err := p.deleteErr[assistantID]; err != nil {
		return err
	}
	p.deleteCalls = append(p.deleteCalls, assistantID)
	return nil
}

func (p *fakeProvider) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	if p.completeErr != nil {
		return "", p.completeErr
	}
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	p.completeFrom = append(p.completeFrom, messages[len(messages)-1].Content)
	summary := fmt.Sprintf("summary %d", len(p.completions)+1)
	p.completions = append(p.completions, summary)
	return summary, nil
}

type fakeDispatcher struct {
	enqueued []taskqueue.Task
	err      error
}

func (d *fakeDispatcher) Enqueue(_ context.Context, path string, payload any) (taskqueue.JobStatus, error) {
	if d.err != nil {
		return taskqueue.JobStatus{}, d.err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return taskqueue.JobStatus{}, err
	}
	task := taskqueue.Task{ID: util.NewID(), Path: path, Payload: data}
	d.enqueued = append(d.enqueued, task)
	return taskqueue.JobStatus{ID: task.ID, Path: path, Status: taskqueue.StatusQueued}, nil
}

type testApp struct {
	app      *App
	meta     *fakeMeta
	conv     *fakeConv
	objects  *fakeObjects
	provider *fakeProvider
	tasks    *fakeDispatcher
	now      time.Time
}

func newTestApp(t *testing.T) *testApp {
	meta := newFakeMeta()
	conv := newFakeConv()
	objects := &fakeObjects{}
	provider := newFakeProvider()
	tasks := &fakeDispatcher{}
	a, err := New(Config{
		Meta:     meta,
		Conv:     conv,
		Objects:  objects,
		Provider: provider,
		Tasks:    tasks,
		Bucket:   "documents",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return &testApp{
		app:      a,
		meta:     meta,
		conv:     conv,
		objects:  objects,
		provider: provider,
		tasks:    tasks,
		now:      now,
	}
}

func (ta *testApp) addReadyDocument(docID, ownerID string) (domain.Document, domain.Assistant) {
	doc := domain.NewDocument(ownerID, "handbook", "team handbook", "s3://documents/"+docID+".pdf", ta.now.Add(-time.Hour))
	doc.ID = docID
	doc.UpdateStatus(domain.StatusAssistantReady, ta.now.Add(-time.Hour))
	ta.meta.docs[doc.ID] = doc

	assistant := domain.NewAssistant(doc.ID, "asst-"+docID, "thread-"+docID, ta.now.Add(-time.Hour))
	ta.meta.assistants[doc.ID] = assistant
	ta.conv.mirrors[assistant.AssistantID] = assistant
	return doc, assistant
}

func (ta *testApp) addPreparingDocument(docID, ownerID string) domain.Document {
	doc := domain.NewDocument(ownerID, "handbook", "team handbook", "s3://documents/"+docID+".pdf", ta.now.Add(-time.Hour))
	doc.ID = docID
	ta.meta.docs[doc.ID] = doc
	return doc
}
