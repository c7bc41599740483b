package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxnote/voxnote/internal/notes"
	"github.com/voxnote/voxnote/internal/realtime"
	"github.com/voxnote/voxnote/internal/websocket"
	"github.com/voxnote/voxnote/pkg/logger"
)

// Handler handles API requests
type Handler struct {
	notes    *notes.Service
	tokens   realtime.TokenIssuer
	recorder *realtime.Controller // nil when audio capture is disabled
	wsServer *websocket.Server
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(noteService *notes.Service, tokens realtime.TokenIssuer, recorder *realtime.Controller, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		notes:    noteService,
		tokens:   tokens,
		recorder: recorder,
		wsServer: wsServer,
		logger:   log.Named("api-handler"),
	}
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error("Failed to encode response", logger.Error(err))
		}
	}
}

// respondError writes a JSON error response
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// CreateRealtimeToken issues one ephemeral transcription credential.
// Browser-side recorders call this once per recording attempt.
func (h *Handler) CreateRealtimeToken(w http.ResponseWriter, r *http.Request) {
	cred, err := h.tokens.Issue(r.Context())
	if err != nil {
		h.logger.Error("Token issuance failed", logger.Error(err))
		h.respondError(w, http.StatusBadGateway, "failed to create transcription session")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      cred.Token,
		"expires_at": cred.ExpiresAt.Unix(),
	})
}

// GetAllNotes returns all notes, or search results when ?q= is present
func (h *Handler) GetAllNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	records, err := h.notes.Search(query)
	if err != nil {
		h.logger.Error("Failed to list notes", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

// CreateNote creates a new empty note
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	record, err := h.notes.Create()
	if err != nil {
		h.logger.Error("Failed to create note", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	h.respondJSON(w, http.StatusCreated, record)
}

// GetNoteByID returns a single note
func (h *Handler) GetNoteByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.notes.Get(id)
	if err != nil {
		h.logger.Error("Failed to get note", logger.String("id", id), logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	if record == nil {
		h.respondError(w, http.StatusNotFound, "note not found")
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

// UpdateNote replaces a note's content
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.notes.UpdateContent(id, body.Content); err != nil {
		h.respondError(w, http.StatusNotFound, "note not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "content": body.Content})
}

// DeleteNote removes a note
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.notes.Delete(id); err != nil {
		h.respondError(w, http.StatusNotFound, "note not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// StartRecorder starts the server-side recorder
func (h *Handler) StartRecorder(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.respondError(w, http.StatusServiceUnavailable, "audio capture is disabled")
		return
	}

	// Deliberately not the request context: the session outlives the request
	h.recorder.Start(context.Background())
	h.respondJSON(w, http.StatusAccepted, h.recorderStatus())
}

// StopRecorder stops the server-side recorder
func (h *Handler) StopRecorder(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.respondError(w, http.StatusServiceUnavailable, "audio capture is disabled")
		return
	}

	h.recorder.Stop()
	h.respondJSON(w, http.StatusAccepted, h.recorderStatus())
}

// GetRecorderStatus returns recorder state, live text and audio level
func (h *Handler) GetRecorderStatus(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.respondError(w, http.StatusServiceUnavailable, "audio capture is disabled")
		return
	}

	h.respondJSON(w, http.StatusOK, h.recorderStatus())
}

func (h *Handler) recorderStatus() map[string]interface{} {
	return map[string]interface{}{
		"state":          h.recorder.State().String(),
		"streaming_text": h.recorder.StreamingText(),
		"audio_level":    h.recorder.AudioLevel(),
	}
}

// HandleWebSocket upgrades the connection and attaches it to the broadcast
// feed
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleClient(w, r)
}

// GetHealth returns service health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
