package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// LedgerSource provides read access to the closed ledger for archival. The
// Postgres position store satisfies it.
type LedgerSource interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.ClosedPosition, error)
}

// Archiver implements domain.Archiver by exporting old ledger records as
// JSONL to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	ledger LedgerSource
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, ledger LedgerSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		ledger: ledger,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// closedRecord is the JSONL wire form of a ledger record.
type closedRecord struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"owner_id"`
	Pair       string   `json:"pair"`
	Direction  string   `json:"direction"`
	Entry      float64  `json:"entry"`
	ExitPrice  float64  `json:"exit_price"`
	TakeProfit float64  `json:"take_profit"`
	StopLoss   float64  `json:"stop_loss"`
	LotSize    *float64 `json:"lot_size,omitempty"`
	Outcome    string   `json:"outcome"`
	Profit     float64  `json:"profit"`
	OpenedAt   string   `json:"opened_at"`
	ClosedAt   string   `json:"closed_at"`
}

// ArchiveClosedPositions queries all ledger records closed before the
// cutoff, serializes them to JSONL, and uploads the file to S3 at
// archive/closed_positions/YYYY-MM.jsonl. Large payloads go through a
// multipart upload. The count of archived records is returned.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error) {
	closed, err := a.ledger.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions query: %w", err)
	}
	if len(closed) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(closed)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions marshal: %w", err)
	}

	path := archivePath("closed_positions", before)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions upload: %w", err)
	}

	count := int64(len(closed))
	a.logger.InfoContext(ctx, "closed positions archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/closed_positions/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises ledger records as newline-delimited JSON. Each
// record is one compact JSON line followed by '\n'.
func marshalJSONL(records []domain.ClosedPosition) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, cp := range records {
		rec := closedRecord{
			ID:         cp.ID,
			OwnerID:    cp.OwnerID,
			Pair:       cp.Pair,
			Direction:  string(cp.Direction),
			Entry:      cp.Entry,
			ExitPrice:  cp.ExitPrice,
			TakeProfit: cp.TakeProfit,
			StopLoss:   cp.StopLoss,
			LotSize:    cp.LotSize,
			Outcome:    string(cp.Outcome),
			Profit:     cp.Profit,
			OpenedAt:   cp.OpenedAt.UTC().Format(time.RFC3339Nano),
			ClosedAt:   cp.ClosedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
