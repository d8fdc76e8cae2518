package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

type captureWriter struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	w.path = path
	w.contentType = contentType
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.body = body
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	w.path = path
	w.multipart = true
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.body = body
	return nil
}

type stubLedger struct {
	records []domain.ClosedPosition
}

func (s *stubLedger) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.ClosedPosition, error) {
	return s.records, nil
}

func TestArchiveClosedPositions(t *testing.T) {
	size := 1.0
	ledger := &stubLedger{records: []domain.ClosedPosition{
		{
			ID: "a", OwnerID: "owner-1", Pair: "EURUSD",
			Direction: domain.DirectionBuy, Entry: 1.1000, ExitPrice: 1.1051,
			TakeProfit: 1.1050, StopLoss: 1.0950, LotSize: &size,
			Outcome: domain.OutcomeTookProfit, Profit: 510,
			OpenedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			ClosedAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "b", OwnerID: "owner-2", Pair: "USDJPY",
			Direction: domain.DirectionSell, Entry: 150.00, ExitPrice: 151.00,
			TakeProfit: 149.00, StopLoss: 151.00,
			Outcome: domain.OutcomeStoppedOut, Profit: 0,
			OpenedAt: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
			ClosedAt: time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		},
	}}
	writer := &captureWriter{}

	a := NewArchiver(writer, ledger, slog.New(slog.DiscardHandler))
	count, err := a.ArchiveClosedPositions(context.Background(), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "archive/closed_positions/2025-07.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.False(t, writer.multipart)

	// One JSON object per line.
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(writer.body))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "EURUSD", lines[0]["pair"])
	assert.Equal(t, "take_profit", lines[0]["outcome"])
	assert.Equal(t, 510.0, lines[0]["profit"])
	// Unsized record omits lot_size entirely.
	_, hasLot := lines[1]["lot_size"]
	assert.False(t, hasLot)
}

func TestArchiveClosedPositionsEmptyLedgerSkipsUpload(t *testing.T) {
	writer := &captureWriter{}
	a := NewArchiver(writer, &stubLedger{}, slog.New(slog.DiscardHandler))

	count, err := a.ArchiveClosedPositions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.path)
}

func TestArchiveClosedPositionsUsesMultipartForLargePayloads(t *testing.T) {
	// Enough records to cross the multipart threshold.
	n := multipartThreshold/200 + 1
	records := make([]domain.ClosedPosition, n)
	for i := range records {
		records[i] = domain.ClosedPosition{
			ID: "id-padding-padding-padding-padding-padding", OwnerID: "owner-1",
			Pair: "EURUSD", Direction: domain.DirectionBuy,
			Entry: 1.1, ExitPrice: 1.2, TakeProfit: 1.2, StopLoss: 1.0,
			Outcome: domain.OutcomeTookProfit,
			OpenedAt: time.Now().UTC(), ClosedAt: time.Now().UTC(),
		}
	}
	writer := &captureWriter{}
	a := NewArchiver(writer, &stubLedger{records: records}, slog.New(slog.DiscardHandler))

	count, err := a.ArchiveClosedPositions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
	assert.True(t, writer.multipart)
}
