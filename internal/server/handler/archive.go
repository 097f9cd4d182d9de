package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/service"
)

// ArchiveService snapshots resolved markets to object storage.
type ArchiveService interface {
	ArchiveMarket(ctx context.Context, marketID string) (service.ArchiveResult, error)
	ListArchive(ctx context.Context, marketID string) ([]domain.BlobInfo, error)
	LoadRecord(ctx context.Context, marketID string) (domain.MarketRecord, error)
}

// ArchiveHandler serves the archive endpoints.
type ArchiveHandler struct {
	archive ArchiveService
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archive ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logHandler(logger, "archive")}
}

// ArchiveMarket writes a snapshot of a resolved market.
// POST /api/markets/{id}/archive
func (h *ArchiveHandler) ArchiveMarket(w http.ResponseWriter, r *http.Request) {
	res, err := h.archive.ArchiveMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "archive market", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListArchive lists the stored snapshot objects of a market.
// GET /api/markets/{id}/archive
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	objects, err := h.archive.ListArchive(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// ArchivedRecord returns the market record as it was archived.
// GET /api/markets/{id}/archive/record
func (h *ArchiveHandler) ArchivedRecord(w http.ResponseWriter, r *http.Request) {
	m, err := h.archive.LoadRecord(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "load archived record", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
