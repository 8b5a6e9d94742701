// Package api provides HTTP handlers for the chatbridge server REST and SSE API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handler holds dependencies for API handlers.
type Handler struct {
	chats  *chatbridge.ChatService
	bridge *chatbridge.Bridge
	logger chatbridge.Logger
}

// NewHandler creates a new API handler.
func NewHandler(chats *chatbridge.ChatService, bridge *chatbridge.Bridge, logger chatbridge.Logger) *Handler {
	return &Handler{
		chats:  chats,
		bridge: bridge,
		logger: logger,
	}
}

// Routes registers every endpoint on a new router.
func (h *Handler) Routes() *httprouter.Router {
	router := httprouter.New()
	router.GET("/api/v1/chats/:userID/threads", h.HandleListThreads)
	router.POST("/api/v1/chats/:userID/threads", h.HandleCreateThread)
	router.GET("/api/v1/chats/:userID/threads/:threadID/chats", h.HandleListMessages)
	router.POST("/api/v1/chats/:userID/threads/:threadID/chats", h.HandlePostMessage)
	router.GET("/api/v1/chats/:userID/threads/:threadID/connect", h.HandleConnect)
	router.GET("/api/v1/health", h.HandleHealth)
	return router
}

// CreateThreadBody is the body of POST /threads.
type CreateThreadBody struct {
	ThreadName string `json:"threadName"`
}

// PostMessageBody is the body of POST /chats.
type PostMessageBody struct {
	ChatRole    model.ChatRole `json:"chatRole"`
	ChatMessage string         `json:"chatMessage"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleListThreads handles GET /api/v1/chats/:userID/threads
func (h *Handler) HandleListThreads(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	userID, ok := h.pathUUID(w, p, "userID")
	if !ok {
		return
	}

	threads, err := h.chats.ListThreads(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, "Failed to list threads", err)
		return
	}

	h.respondSuccess(w, http.StatusOK, threads, "")
}

// HandleCreateThread handles POST /api/v1/chats/:userID/threads
func (h *Handler) HandleCreateThread(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	userID, ok := h.pathUUID(w, p, "userID")
	if !ok {
		return
	}

	var body CreateThreadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	thread, err := h.chats.CreateThread(r.Context(), chatbridge.CreateThreadRequest{
		UserID:     userID,
		ThreadName: body.ThreadName,
	})
	if err != nil {
		h.respondServiceError(w, "Failed to create thread", err)
		return
	}

	h.respondSuccess(w, http.StatusCreated, thread, "Thread created successfully")
}

// HandleListMessages handles GET /api/v1/chats/:userID/threads/:threadID/chats
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	userID, ok := h.pathUUID(w, p, "userID")
	if !ok {
		return
	}
	threadID, ok := h.pathUUID(w, p, "threadID")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer", chatbridge.ErrCodeValidation)
			return
		}
		limit = n
	}

	messages, err := h.chats.ListMessages(r.Context(), userID, threadID, limit)
	if err != nil {
		h.respondServiceError(w, "Failed to list messages", err)
		return
	}

	h.respondSuccess(w, http.StatusOK, messages, "")
}

// HandlePostMessage handles POST /api/v1/chats/:userID/threads/:threadID/chats
func (h *Handler) HandlePostMessage(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	userID, ok := h.pathUUID(w, p, "userID")
	if !ok {
		return
	}
	threadID, ok := h.pathUUID(w, p, "threadID")
	if !ok {
		return
	}

	var body PostMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	msg, err := h.chats.PostMessage(r.Context(), chatbridge.PostMessageRequest{
		UserID:   userID,
		ThreadID: threadID,
		ChatRole: body.ChatRole,
		Message:  body.ChatMessage,
	})
	if err != nil {
		h.respondServiceError(w, "Failed to post message", err)
		return
	}

	h.respondSuccess(w, http.StatusCreated, msg, "Message posted successfully")
}

// HandleHealth handles GET /api/v1/health
//
// The server is unhealthy once the consumer loop stopped.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	state := h.bridge.Consumer().State()
	status, code := "healthy", http.StatusOK
	if state == chatbridge.StateStopped {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":      status,
		"consumer":    state.String(),
		"subscribers": h.bridge.Registry().Len(),
		"keys":        h.bridge.Registry().Keys(),
		"timestamp":   time.Now().UTC(),
		"version":     Version,
	}

	h.respondSuccess(w, code, health, "")
}

func (h *Handler) pathUUID(w http.ResponseWriter, p httprouter.Params, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(p.ByName(name))
	if err != nil || id == uuid.Nil {
		h.respondError(w, http.StatusBadRequest, "Invalid "+name, "INVALID_ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps a chatbridge error to its HTTP status.
func (h *Handler) respondServiceError(w http.ResponseWriter, message string, err error) {
	var bridgeErr *chatbridge.Error
	if !errors.As(err, &bridgeErr) {
		h.logger.Errorf("%s: %v", message, err)
		h.respondError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
		return
	}

	status := http.StatusInternalServerError
	switch bridgeErr.Code {
	case chatbridge.ErrCodeValidation:
		status = http.StatusBadRequest
	case chatbridge.ErrCodeNoData:
		status = http.StatusNotFound
	case chatbridge.ErrCodePublish, chatbridge.ErrCodeBrokerFatal:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s: %v", message, err)
	}

	h.respondError(w, status, bridgeErr.Error(), bridgeErr.Code)
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(next http.Handler, logger chatbridge.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
