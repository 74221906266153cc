// Package api is the HTTP surface of the assistant: the completion endpoint,
// the panel endpoints and the panel update stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/logger"
	"github.com/comigor/taxassist-go/internal/middleware"
	"github.com/comigor/taxassist-go/internal/panel"
)

// Handler serves the API.
type Handler struct {
	completer      panel.Completer
	panels         *panel.Manager
	store          history.Store
	allowedOrigins []string
}

// pinger is implemented by stores backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a Handler. completer answers /api/chat directly; panels
// own their own completer through the manager options. store backs /ready.
func NewHandler(completer panel.Completer, panels *panel.Manager, store history.Store, allowedOrigins []string) *Handler {
	return &Handler{completer: completer, panels: panels, store: store, allowedOrigins: allowedOrigins}
}

// Router builds the chi router with the global middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(h.allowedOrigins))

	r.Get("/ready", h.Ready)
	h.RegisterRoutes(r)
	return r
}

// Ready reports whether the conversation store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.L.Warn("conversation store not ready", "error", err)
			Error(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)

		r.Route("/panels", func(r chi.Router) {
			r.Post("/", h.CreatePanel)
			r.Route("/{panelID}", func(r chi.Router) {
				r.Get("/", h.GetPanel)
				r.Delete("/", h.DeletePanel)
				r.Post("/open", h.OpenPanel)
				r.Post("/close", h.ClosePanel)
				r.Put("/location", h.SetLocation)
				r.Get("/history", h.GetHistory)
				r.Post("/conversations", h.NewConversation)
				r.Post("/conversations/{sessionID}", h.LoadConversation)
				r.Post("/messages", h.SendMessage)
				r.Post("/query", h.ExternalQuery)
				r.Post("/quick-actions", h.QuickAction)
				r.Get("/stream", h.Stream)
			})
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}
