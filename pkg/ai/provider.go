package ai

import "context"

// ChatMessage is one role-tagged turn of a stateless completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the external AI provider consumed by the lifecycle operations.
// All calls may be slow; Ask in particular polls a remote run to completion.
type Provider interface {
	// CreateAssistant uploads the file at filePath, creates a remote
	// assistant bound to it and a conversation thread, and returns both
	// opaque handles.
	CreateAssistant(ctx context.Context, name, filePath string) (assistantID, threadID string, err error)
	// Ask posts the question to the thread and blocks until the assistant's
	// answer is available.
	Ask(ctx context.Context, assistantID, threadID, question string) (string, error)
	DeleteAssistant(ctx context.Context, assistantID string) error
	// Complete performs a stateless chat completion over the given turns.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}
