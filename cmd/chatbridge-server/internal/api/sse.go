package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// sseSink writes each payload as one Server-Sent Events data event.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// Emit writes "data: <payload>\n\n" and flushes, so the client has the event
// before the delivery is acknowledged. A payload spanning several lines is
// compacted first: a raw line break would split the event.
func (s sseSink) Emit(_ context.Context, payload json.RawMessage) error {
	if bytes.ContainsAny(payload, "\r\n") {
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload); err != nil {
			return err
		}
		payload = compact.Bytes()
	}

	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// HandleConnect handles GET /api/v1/chats/:userID/threads/:threadID/connect
//
// It streams every message published to the thread from the moment the client
// connects, until the client disconnects or the server shuts down.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	userID, ok := h.pathUUID(w, p, "userID")
	if !ok {
		return
	}
	threadID, ok := h.pathUUID(w, p, "threadID")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}

	// The server WriteTimeout would cut long-lived streams.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debugf("Could not clear write deadline: %v", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	key := model.NewRoutingKey(userID, threadID)
	err := h.bridge.Streamer().Serve(r.Context(), key, sseSink{w: w, flusher: flusher})
	switch {
	case err == nil:
		h.logger.Debugf("Stream for key=%s closed", key)
	case errors.Is(err, chatbridge.ErrSubscriberEvicted):
		h.logger.Warnf("Stream for key=%s evicted: client too slow", key)
	default:
		h.logger.Infof("Stream for key=%s ended: %v", key, err)
	}
}
