package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/middleware"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

// DefaultMaxUploadBytes caps a single clip upload.
const DefaultMaxUploadBytes = 256 << 20

type ClipHandler struct {
	Ingester       ingest.Ingester
	Tracker        *clip.Tracker
	MaxUploadBytes int64
	Log            *slog.Logger
}

func NewClipHandler(ing ingest.Ingester, tracker *clip.Tracker, log *slog.Logger) *ClipHandler {
	return &ClipHandler{
		Ingester:       ing,
		Tracker:        tracker,
		MaxUploadBytes: DefaultMaxUploadBytes,
		Log:            logger.Component(log, "api"),
	}
}

type submitResponse struct {
	Status       string `json:"status"`
	ClipID       string `json:"clip_id"`
	EvidencePath string `json:"evidence_path"`
	AudioFound   bool   `json:"audio_found"`
}

// POST /api/v1/clips
func (h *ClipHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "clip upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, _, err := r.FormFile(ingest.FieldClip)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing clip part")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read clip part")
		return
	}
	c, err := clip.Unmarshal(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if id := strings.TrimSpace(r.FormValue(ingest.FieldClipID)); id != "" && id != c.ID {
		respondError(w, http.StatusBadRequest, "clip_id does not match the uploaded clip")
		return
	}
	if ts := strings.TrimSpace(r.FormValue(ingest.FieldTriggerAt)); ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "trigger_timestamp must be RFC3339")
			return
		}
		c.TriggerAt = at
	}
	if loc := strings.TrimSpace(r.FormValue(ingest.FieldLocation)); loc != "" {
		c.Location = loc
	}

	rec, err := h.Ingester.Ingest(r.Context(), c)
	if err != nil {
		status, msg := ingestStatus(err)
		if status >= 500 && status != http.StatusInsufficientStorage {
			h.Log.Error("ingest failed", "clip_id", c.ID, "req_id", middleware.RequestID(r.Context()), "error", err)
		}
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "5")
		}
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusAccepted, submitResponse{
		Status:       "analysis_started",
		ClipID:       rec.ClipID,
		EvidencePath: rec.EvidencePath,
		AudioFound:   rec.AudioFound,
	})
}

// ingestStatus maps ingestion failures to HTTP status codes.
func ingestStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrDuplicateClip):
		return http.StatusConflict, "clip already submitted"
	case errors.Is(err, ingest.ErrInvalidClip):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ingest.ErrInsufficientSpace):
		return http.StatusInsufficientStorage, "insufficient storage for clip"
	case errors.Is(err, ingest.ErrQueueFull):
		return http.StatusServiceUnavailable, "analysis queue is full"
	case errors.Is(err, analysis.ErrStopped):
		return http.StatusServiceUnavailable, "shutting down"
	default:
		return http.StatusInternalServerError, "failed to ingest clip"
	}
}

// GET /api/v1/clips/{id}
func (h *ClipHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Tracker == nil {
		respondError(w, http.StatusNotFound, "clip not found")
		return
	}
	rec, ok := h.Tracker.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "clip not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *ClipHandler) Register(r chi.Router) {
	r.Post("/api/v1/clips", h.Submit)
	r.Get("/api/v1/clips/{id}", h.Get)
}
