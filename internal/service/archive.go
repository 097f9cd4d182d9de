package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/market"
)

const archivePageSize = 500

// ArchiveResult describes one written snapshot.
type ArchiveResult struct {
	MarketID   string `json:"market_id"`
	RecordPath string `json:"record_path"`
	EventsPath string `json:"events_path"`
	Events     int    `json:"events"`
}

// ArchiveService snapshots resolved markets to object storage: the binary
// record plus the full event log as JSON lines.
type ArchiveService struct {
	store  domain.MarketStore
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(store domain.MarketStore, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		store:  store,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// ArchiveMarket writes the snapshot for a resolved market. Re-archiving
// overwrites the previous snapshot.
func (s *ArchiveService) ArchiveMarket(ctx context.Context, marketID string) (ArchiveResult, error) {
	if err := market.ValidateID(marketID); err != nil {
		return ArchiveResult{}, err
	}
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}
	if m.Status != domain.MarketStatusResolved {
		return ArchiveResult{}, fmt.Errorf("archive: %s: %w (status %s)", marketID, domain.ErrMarketNotResolved, m.Status)
	}

	var events bytes.Buffer
	enc := json.NewEncoder(&events)
	count := 0
	for offset := 0; ; offset += archivePageSize {
		page, err := s.store.ListEvents(ctx, marketID, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return ArchiveResult{}, fmt.Errorf("archive: %s: list events: %w", marketID, err)
		}
		for _, ev := range page {
			if err := enc.Encode(ev); err != nil {
				return ArchiveResult{}, fmt.Errorf("archive: %s: encode event %s: %w", marketID, ev.ID, err)
			}
		}
		count += len(page)
		if len(page) < archivePageSize {
			break
		}
	}

	res := ArchiveResult{
		MarketID:   marketID,
		RecordPath: domain.ArchivePath(marketID, domain.ArchiveRecordObject),
		EventsPath: domain.ArchivePath(marketID, domain.ArchiveEventsObject),
		Events:     count,
	}
	if err := s.writer.Put(ctx, res.RecordPath, bytes.NewReader(market.Encode(m)), domain.ContentTypeRecord); err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}
	if err := s.writer.Put(ctx, res.EventsPath, &events, domain.ContentTypeEvents); err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "market archived",
		slog.String("market_id", marketID),
		slog.Int("events", count),
	)
	return res, nil
}

// ListArchive lists the stored objects of one market's snapshot.
func (s *ArchiveService) ListArchive(ctx context.Context, marketID string) ([]domain.BlobInfo, error) {
	if err := market.ValidateID(marketID); err != nil {
		return nil, err
	}
	infos, err := s.reader.List(ctx, domain.ArchivePrefix(marketID))
	if err != nil {
		return nil, fmt.Errorf("archive: %s: list: %w", marketID, err)
	}
	return infos, nil
}

// LoadRecord reads back and decodes an archived market record.
func (s *ArchiveService) LoadRecord(ctx context.Context, marketID string) (domain.MarketRecord, error) {
	if err := market.ValidateID(marketID); err != nil {
		return domain.MarketRecord{}, err
	}
	path := domain.ArchivePath(marketID, domain.ArchiveRecordObject)
	info, err := s.reader.Stat(ctx, path)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}
	if info.Size != market.RecordSpace {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: record is %d bytes, want %d", marketID, info.Size, market.RecordSpace)
	}

	body, err := s.reader.Get(ctx, path)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, market.RecordSpace+1))
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: read record: %w", marketID, err)
	}
	m, err := market.Decode(data)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: %w", marketID, err)
	}
	// The layout carries neither id nor address; both follow from the id.
	m.ID = marketID
	m.Address, _ = crypto.MarketAddress(marketID)
	return m, nil
}

var _ MarketArchiver = (*ArchiveService)(nil)
