// Package api exposes the quest onboarding HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/questor-agent/server/internal/conversation"
	errx "github.com/questor-agent/server/internal/core/error"
	"github.com/questor-agent/server/internal/listing"
	"github.com/questor-agent/server/internal/middleware"
	"github.com/questor-agent/server/internal/upload"
	logx "github.com/questor-agent/server/pkg/logger"
)

const maxJSONBody = 64 << 10

type Conversation interface {
	HandleMessage(ctx context.Context, req conversation.Request) (*conversation.Response, error)
}

type Publisher interface {
	Save(ctx context.Context, req listing.CreateRequest) (map[string]any, error)
	Update(ctx context.Context, id string, updates map[string]any) (map[string]any, error)
}

type Uploader interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	MaxBytes() int64
	Handler() http.Handler
}

// Handler serves the HTTP endpoints.
type Handler struct {
	conv    Conversation
	pub     Publisher
	uploads Uploader
}

func NewHandler(conv Conversation, pub Publisher, uploads Uploader) *Handler {
	return &Handler{conv: conv, pub: pub, uploads: uploads}
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins))

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/start-quest", h.StartQuest)
	r.Post("/upload-photo", h.UploadPhoto)
	if h.uploads != nil {
		r.Handle(upload.URLPrefix+"*", h.uploads.Handler())
	}
	r.Route("/api/quests", func(r chi.Router) {
		r.Post("/save", h.SaveQuest)
		r.Put("/{questID}", h.UpdateQuest)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) StartQuest(w http.ResponseWriter, r *http.Request) {
	var req conversation.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.conv.HandleMessage(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, r, errx.Unavailable("uploads are not configured"))
		return
	}
	// room for the multipart envelope
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+(1<<20))

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, errx.New(err, http.StatusRequestEntityTooLarge, "file too large"))
			return
		}
		writeError(w, r, errx.Validation("file is required"))
		return
	}
	defer file.Close()

	url, err := h.uploads.Save(r.Context(), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) SaveQuest(w http.ResponseWriter, r *http.Request) {
	var req listing.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	quest, err := h.pub.Save(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "quest": quest})
}

func (h *Handler) UpdateQuest(w http.ResponseWriter, r *http.Request) {
	var req listing.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	quest, err := h.pub.Update(r.Context(), chi.URLParam(r, "questID"), req.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "quest": quest})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errx.New(err, http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	Error(w, status, errx.MessageOf(err))
}
