package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const assistantInstructions = "You are a dedicated assistant for extracting specific information " +
	"from the uploaded document. Answer the user's questions using the document's contents."

const threadOpening = "Answer the upcoming questions based on the document's contents."

type fileResponse struct {
	ID string `json:"id"`
}

type vectorStoreResponse struct {
	ID string `json:"id"`
}

type assistantResponse struct {
	ID string `json:"id"`
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type messageListResponse struct {
	Data []messageResponse `json:"data"`
}

// CreateAssistant uploads the document, builds a file-search assistant over
// it and opens a conversation thread. The remote resources exist as soon as
// this returns; the caller owns tearing them down if its own commit fails.
func (c *OpenAIClient) CreateAssistant(ctx context.Context, name, filePath string) (string, string, error) {
	fileID, err := c.uploadFile(ctx, filePath)
	if err != nil {
		return "", "", err
	}

	var vs vectorStoreResponse
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]any{
		"name":     name,
		"file_ids": []string{fileID},
	}, &vs); err != nil {
		return "", "", fmt.Errorf("create vector store: %w", err)
	}

	var assistant assistantResponse
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", map[string]any{
		"name":         name,
		"model":        c.model,
		"instructions": assistantInstructions,
		"tools":        []map[string]string{{"type": "file_search"}},
		"tool_resources": map[string]any{
			"file_search": map[string]any{"vector_store_ids": []string{vs.ID}},
		},
	}, &assistant); err != nil {
		return "", "", fmt.Errorf("create assistant: %w", err)
	}

	var thread threadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": threadOpening},
		},
	}, &thread); err != nil {
		return "", "", fmt.Errorf("create thread: %w", err)
	}

	return assistant.ID, thread.ID, nil
}

// Ask posts the question, starts a run, polls it to a terminal state and
// returns the first reply written after the question.
func (c *OpenAIClient) Ask(ctx context.Context, assistantID, threadID, question string) (string, error) {
	var userMsg messageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", map[string]string{
		"role":    "user",
		"content": question,
	}, &userMsg); err != nil {
		return "", fmt.Errorf("post question: %w", err)
	}

	var run runResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", map[string]string{
		"assistant_id": assistantID,
	}, &run); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	if err := c.waitOnRun(ctx, threadID, &run); err != nil {
		return "", err
	}
	if run.Status != "completed" {
		if run.LastError != nil {
			return "", fmt.Errorf("run %s: %s: %s", run.Status, run.LastError.Code, run.LastError.Message)
		}
		return "", fmt.Errorf("run ended with status %s", run.Status)
	}

	var list messageListResponse
	path := fmt.Sprintf("/threads/%s/messages?order=asc&after=%s", threadID, userMsg.ID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	for _, msg := range list.Data {
		for _, content := range msg.Content {
			if content.Type == "text" && content.Text.Value != "" {
				return content.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("run completed without a text answer")
}

func (c *OpenAIClient) waitOnRun(ctx context.Context, threadID string, run *runResponse) error {
	for run.Status == "queued" || run.Status == "in_progress" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
		if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, run); err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
	}
	return nil
}

// DeleteAssistant destroys the remote assistant resource.
func (c *OpenAIClient) DeleteAssistant(ctx context.Context, assistantID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/assistants/"+assistantID, nil, nil); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	return nil
}

func (c *OpenAIClient) uploadFile(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeAPIError(resp)
	}
	var uploaded fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("decode upload: %w", err)
	}
	return uploaded.ID, nil
}
