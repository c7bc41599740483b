package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxnote/voxnote/internal/config"
	"github.com/voxnote/voxnote/internal/notes"
	"github.com/voxnote/voxnote/internal/realtime"
	"github.com/voxnote/voxnote/internal/websocket"
	"github.com/voxnote/voxnote/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(noteService *notes.Service, tokens realtime.TokenIssuer, recorder *realtime.Controller, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(noteService, tokens, recorder, wsServer, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Ephemeral transcription credentials for browser-side recorders
		router.Post("/realtime-token", r.handler.CreateRealtimeToken)

		// Note routes
		router.Get("/notes", r.handler.GetAllNotes)
		router.Post("/notes", r.handler.CreateNote)
		router.Get("/notes/{id}", r.handler.GetNoteByID)
		router.Put("/notes/{id}", r.handler.UpdateNote)
		router.Delete("/notes/{id}", r.handler.DeleteNote)

		// Server-side recorder routes
		router.Post("/recorder/start", r.handler.StartRecorder)
		router.Post("/recorder/stop", r.handler.StopRecorder)
		router.Get("/recorder/status", r.handler.GetRecorderStatus)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	// Serve static files from the configured directory
	staticHandler := NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger)
	router.Handle("/*", staticHandler)

	return router
}
