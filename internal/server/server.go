package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"docassist/internal/app"
	"docassist/internal/util"
	"docassist/pkg/apperr"
	"docassist/pkg/taskqueue"
)

// UserIDHeader identifies the caller on user-facing routes. The gateway in
// front of this service authenticates the user and forwards the id.
const UserIDHeader = "X-User-ID"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Status *taskqueue.StatusStore
	Signer *taskqueue.TokenSigner
}

// Server exposes the user-facing document API and the task delivery routes
// the queue worker posts to.
type Server struct {
	app    *app.App
	status *taskqueue.StatusStore
	signer *taskqueue.TokenSigner
	mux    *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Status == nil {
		return nil, errors.New("status store required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("token signer required")
	}
	s := &Server{
		app:    cfg.App,
		status: cfg.Status,
		signer: cfg.Signer,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// documents
	s.mux.Handle("/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/documents/", s.withUser(s.handleDocumentByID))

	// task delivery (queue worker) and task status lookup
	s.mux.Handle(app.TaskPathCreateAssistant, s.withTaskToken(s.handleCreateAssistantTask))
	s.mux.Handle(app.TaskPathCreateMessage, s.withTaskToken(s.handleCreateMessageTask))
	s.mux.Handle(app.TaskPathSummariseDocument, s.withTaskToken(s.handleSummariseDocumentTask))
	s.mux.Handle("/tasks/", s.withUser(s.handleTaskStatus))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) withTaskToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := taskqueue.TokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.signer.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := s.app.RegisterDocument(r.Context(), userID, req.Name, req.Description, req.ObjectKey)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// /documents/{id} plus the assistants, messages and summaries sub-resources.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "assistants":
			s.handleAssistants(w, r, userID, id)
		case "messages":
			s.handleMessages(w, r, userID, id)
		case "summaries":
			s.handleSummaries(w, r, userID, id)
		default:
			notFound(w, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetOwnedDocument(r.Context(), userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPut:
		var req updateDocumentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		doc, err := s.app.UpdateDocumentMeta(r.Context(), userID, id, req.Name, req.Description)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocument(r.Context(), userID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAssistants(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	job, err := s.app.RequestAssistant(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodPost:
		var req sendMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		job, err := s.app.RequestMessage(r.Context(), userID, id, req.Message)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		messages, err := s.app.ListMessages(r.Context(), userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": messages,
			"count": len(messages),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodPost:
		job, err := s.app.RequestSummaries(r.Context(), userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		summaries, err := s.app.ListSummaries(r.Context(), userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": summaries,
			"count": len(summaries),
		})
	default:
		methodNotAllowed(w)
	}
}

// /tasks/{id}
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	job, ok, err := s.status.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCreateAssistantTask(w http.ResponseWriter, r *http.Request) {
	var req documentTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.ProvisionAssistant(r.Context(), req.DocumentID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (s *Server) handleCreateMessageTask(w http.ResponseWriter, r *http.Request) {
	var req messageTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.ExchangeMessage(r.Context(), req.DocumentID, req.Message); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (s *Server) handleSummariseDocumentTask(w http.ResponseWriter, r *http.Request) {
	var req documentTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.SummarizeDocument(r.Context(), req.DocumentID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

type registerDocumentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ObjectKey   string `json:"objectKey"`
}

type updateDocumentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type documentTaskRequest struct {
	DocumentID string `json:"documentId"`
}

type messageTaskRequest struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps the application error taxonomy onto HTTP statuses. The
// worker relies on 4xx versus 5xx to decide whether a task retries.
func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, statusForKind(apperr.KindOf(err)), err.Error())
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindInvalidReference:
		return http.StatusUnprocessableEntity
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "DOC_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "DOC_FORBIDDEN"
	case http.StatusNotFound:
		return "DOC_NOT_FOUND"
	case http.StatusConflict:
		return "DOC_INVALID_STATE"
	case http.StatusUnprocessableEntity:
		return "DOC_INVALID_FILE_REF"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusBadGateway:
		return "PROVIDER_ERROR"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
