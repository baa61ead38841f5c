package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/h2non/filetype"

	"github.com/sitewatch/snapshotd/internal/repository"
	"github.com/sitewatch/snapshotd/internal/services"
	"github.com/sitewatch/snapshotd/internal/telemetry"
	"github.com/sitewatch/snapshotd/internal/telemetry/metrics"
)

// BaselineLocator is the slice of the baselines service the HTTP layer
// depends on.
type BaselineLocator interface {
	LocateBaseline(ctx context.Context, siteID int64) (services.Baseline, error)
}

type Handler struct {
	baselines       BaselineLocator
	placeholderPath string
	telemetry       *telemetry.TelemetrySvc
	logger          *slog.Logger
}

func NewHandler(
	baselines BaselineLocator,
	placeholderPath string,
	telemetry *telemetry.TelemetrySvc,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		baselines:       baselines,
		placeholderPath: placeholderPath,
		telemetry:       telemetry,
		logger:          logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetBaselineImage serves the baseline screenshot for a site. A baseline
// that cannot be located is answered with the placeholder image, not an
// error: missing baselines are expected for newly added sites.
func (h *Handler) GetBaselineImage(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(chi.URLParam(r, "siteID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	h.telemetry.Metrics().Increment(metrics.BaselineRequestReceived, nil)

	baseline, err := h.baselines.LocateBaseline(r.Context(), siteID)
	if errors.Is(err, repository.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "site not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to locate baseline", "error", err, "site_id", siteID)
		h.respondError(w, http.StatusInternalServerError, "failed to locate baseline")
		return
	}

	if !baseline.Found {
		h.logger.Error(
			"no baseline image found for site, serving placeholder",
			"site_id", siteID,
		)
		h.telemetry.Metrics().Increment(metrics.PlaceholderServed, nil)
		h.serveImage(w, siteID, h.placeholderPath)
		return
	}

	h.telemetry.Metrics().Increment(
		metrics.BaselineResolved,
		map[string]string{"candidate": baseline.Via},
	)
	h.serveImage(w, siteID, baseline.AbsPath)
}

func (h *Handler) serveImage(
	w http.ResponseWriter,
	siteID int64,
	absPath string,
) {
	buf, err := os.ReadFile(absPath)
	if err != nil {
		h.logger.Error(
			"failed to read image file",
			"error", err,
			"site_id", siteID,
			"path", absPath,
		)
		h.respondError(w, http.StatusInternalServerError, "failed to read image")
		return
	}

	w.Header().Set("Content-Type", sniffContentType(buf))
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf); err != nil {
		h.logger.Error("failed to write response", "error", err, "site_id", siteID)
	}
}

func sniffContentType(buf []byte) string {
	kind, err := filetype.Match(buf)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}

	return kind.MIME.Value
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
