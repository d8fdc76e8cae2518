package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

// archivePrefix scopes browse and download operations to archive objects.
const archivePrefix = "archive/"

// ArchiveHandler serves the cold-storage endpoints: triggering an export of
// old ledger records and browsing previously archived files.
type ArchiveHandler struct {
	archiver domain.Archiver
	reader   domain.BlobReader
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler with the given dependencies.
func NewArchiveHandler(archiver domain.Archiver, reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		reader:   reader,
		logger:   logger,
	}
}

// Run archives all ledger records closed before the cutoff. The cutoff comes
// from the "before" query parameter (RFC 3339) and defaults to 30 days ago.
// POST /api/archive/run?before=2025-07-01T00:00:00Z
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC().AddDate(0, 0, -30)
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		before = t
	}

	count, err := h.archiver.ArchiveClosedPositions(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive run failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archived": count,
		"before":   before.Format(time.RFC3339),
	})
}

// List returns metadata for all archive files.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive list failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	type fileInfo struct {
		Path         string `json:"path"`
		Size         int64  `json:"size"`
		LastModified string `json:"last_modified"`
	}
	out := make([]fileInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, fileInfo{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

// Download streams a single archive file.
// GET /api/archive/{key...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "archive key required")
		return
	}

	body, err := h.reader.Get(r.Context(), archivePrefix+key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive file not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: archive download failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch archive file")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
