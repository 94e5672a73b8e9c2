package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/delivery/http/request"
	"github.com/pazars/grabeklis/internal/delivery/http/response"
	"github.com/pazars/grabeklis/internal/usecase"
)

type Handler struct {
	archive usecase.ArchiveManager
	runs    usecase.RunController
	logger  *zap.Logger
}

// NewHandler creates the API handler. runs may be nil, which disables the
// crawl endpoints.
func NewHandler(archive usecase.ArchiveManager, runs usecase.RunController, logger *zap.Logger) *Handler {
	return &Handler{
		archive: archive,
		runs:    runs,
		logger:  logger,
	}
}

func (h *Handler) HandleTriggerCrawl(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeJSONError(w, "Crawling is not enabled on this server", http.StatusNotImplemented)
		return
	}

	var req request.TriggerCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MaxItems < 0 {
		h.writeJSONError(w, "max_items must be >= 0", http.StatusBadRequest)
		return
	}

	if err := h.runs.Submit(r.Context(), req.RunRequest()); err != nil {
		if errors.Is(err, usecase.ErrRunInProgress) {
			h.writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("Failed to start crawl", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.TriggerCrawlResponse{
		Status:  "success",
		Message: "Crawl started",
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) HandleGetCrawlState(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeJSONError(w, "Crawling is not enabled on this server", http.StatusNotImplemented)
		return
	}
	h.writeJSON(w, http.StatusOK, h.runs.State())
}

func (h *Handler) HandleGetArticleStatus(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		h.writeJSONError(w, "Invalid URL format in query parameter", http.StatusBadRequest)
		return
	}

	status, err := h.archive.Status(r.Context(), rawURL)
	if err != nil {
		h.logger.Error("Failed to get article status", zap.String("url", rawURL), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if status.Status == usecase.StatusNotFound {
		h.writeJSONError(w, "URL not found in the archive", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.archive.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to read archive summary", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleGetArchiveStats(w http.ResponseWriter, r *http.Request) {
	overview, err := h.archive.Overview(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute archive stats", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewArchiveStatsResponse(overview))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
