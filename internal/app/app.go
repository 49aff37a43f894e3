// Package app implements the assistant lifecycle operations and the
// summarization pipeline over the three backing stores and the external AI
// provider. Each operation runs as one logical unit of work; steps are
// sequential and every external call is awaited before the next runs.
package app

import (
	"errors"
	"os"
	"time"

	"docassist/pkg/ai"
	"docassist/pkg/convstore"
	"docassist/pkg/storage"
	"docassist/pkg/store"
	"docassist/pkg/taskqueue"
)

// Task paths served by the worker and addressed by the dispatcher.
const (
	TaskPathCreateAssistant   = "/tasks/create_assistant"
	TaskPathCreateMessage     = "/tasks/create_message"
	TaskPathSummariseDocument = "/tasks/summarise_document"
)

type createAssistantTask struct {
	DocumentID string `json:"documentId"`
}

type createMessageTask struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

type summariseDocumentTask struct {
	DocumentID string `json:"documentId"`
}

// Config wires the collaborators. All clients are constructed by the caller
// and passed in explicitly.
type Config struct {
	Meta     store.MetadataStore
	Conv     convstore.ConversationStore
	Objects  storage.ObjectStore
	Provider ai.Provider
	Tasks    taskqueue.Dispatcher

	// Bucket is the object-store bucket new document references point into.
	Bucket string
	// AssistantTTL is the staleness threshold for the expiry sweep.
	AssistantTTL time.Duration
	// SummaryWindow is the chunk size, in runes, of one summarization part.
	SummaryWindow int
	// ScratchDir holds per-operation download files. Defaults to the OS
	// temp directory.
	ScratchDir string
}

// App orchestrates provisioning, usage, teardown and summarization.
type App struct {
	meta     store.MetadataStore
	conv     convstore.ConversationStore
	objects  storage.ObjectStore
	provider ai.Provider
	tasks    taskqueue.Dispatcher

	bucket        string
	assistantTTL  time.Duration
	summaryWindow int
	scratchDir    string

	now     func() time.Time
	extract func(path string) (string, error)
}

// New validates the wiring and applies defaults.
func New(cfg Config) (*App, error) {
	if cfg.Meta == nil {
		return nil, errors.New("metadata store required")
	}
	if cfg.Conv == nil {
		return nil, errors.New("conversation store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("ai provider required")
	}
	if cfg.Tasks == nil {
		return nil, errors.New("task dispatcher required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket required")
	}
	assistantTTL := cfg.AssistantTTL
	if assistantTTL <= 0 {
		assistantTTL = 3 * time.Hour
	}
	summaryWindow := cfg.SummaryWindow
	if summaryWindow <= 0 {
		summaryWindow = 10000
	}
	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &App{
		meta:          cfg.Meta,
		conv:          cfg.Conv,
		objects:       cfg.Objects,
		provider:      cfg.Provider,
		tasks:         cfg.Tasks,
		bucket:        cfg.Bucket,
		assistantTTL:  assistantTTL,
		summaryWindow: summaryWindow,
		scratchDir:    scratchDir,
		now:           func() time.Time { return time.Now().UTC() },
		extract:       extractPDFText,
	}, nil
}
