package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"docassist/internal/util"
	"docassist/pkg/ai"
	"docassist/pkg/apperr"
	"docassist/pkg/domain"
	"docassist/pkg/storage"
)

const summaryPersona = "You are a precise technical summarizer. You produce faithful, self-contained summaries of document excerpts without inventing facts."

// SummarizeDocument regenerates the full summary set for a document. The
// source file is re-downloaded, split into fixed-size windows and summarized
// window by window. The stored set is only replaced once every window has
// succeeded; any failure leaves the previous summaries untouched.
func (a *App) SummarizeDocument(ctx context.Context, documentID string) error {
	logger := util.LoggerFromContext(ctx)
	now := a.now()

	doc, ok, err := a.meta.GetDocument(ctx, documentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "load document")
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found: %s", documentID)
	}

	key, ok := storage.ExtractKey(doc.FileRef)
	if !ok {
		return apperr.New(apperr.KindInvalidReference, "malformed file reference: %s", doc.FileRef)
	}
	localPath := a.scratchPath(doc.ID)
	if err := a.objects.Download(ctx, key, localPath); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "download source file")
	}
	defer os.Remove(localPath)

	text, err := a.extract(localPath)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "extract text")
	}
	parts := windowText(text, a.summaryWindow)
	if len(parts) == 0 {
		return apperr.New(apperr.KindInvalidState, "document %s has no extractable text", documentID)
	}

	summaries := make([]domain.DocumentSummary, 0, len(parts))
	for i, part := range parts {
		answer, err := a.provider.Complete(ctx, []ai.ChatMessage{
			{Role: "system", Content: summaryPersona},
			{Role: "user", Content: summaryPrompt(part, i+1, len(parts))},
		})
		if err != nil {
			return apperr.Wrap(apperr.KindProvider, err, "summarize part %d of %d", i+1, len(parts))
		}
		summaries = append(summaries, domain.NewDocumentSummary(doc.ID, answer, i, now))
	}

	if err := a.meta.ReplaceSummaries(ctx, doc.ID, summaries); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "store summaries")
	}
	logger.Info("summaries replaced", "documentId", doc.ID, "parts", len(summaries))
	return nil
}

func summaryPrompt(part string, position, total int) string {
	return fmt.Sprintf(
		"Summarize the following excerpt, which is part %d of %d of a larger document. Cover the key points and keep the summary under 300 words.\n\n%s",
		position, total, part,
	)
}

// extractPDFText concatenates plain text page by page, skipping pages the
// parser cannot handle.
func extractPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var builder strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}
	text := normalizeText(builder.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return text, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	// Rejoin words hyphenated across line breaks before collapsing whitespace.
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// windowText splits text into consecutive windows of at most size runes.
func windowText(text string, size int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
