package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pipwatch/internal/config"
)

type fakeArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (f *fakeArchiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.count, f.err
}

func (f *fakeArchiver) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

func testApp(cfg config.Config) *App {
	return New(&cfg, slog.New(slog.DiscardHandler))
}

func TestArchiveExpiredUsesRetentionCutoff(t *testing.T) {
	cfg := config.Defaults()
	cfg.Archive.RetentionDays = 7
	a := testApp(cfg)
	arch := &fakeArchiver{count: 42}

	a.archiveExpired(context.Background(), &Dependencies{Archiver: arch})

	calls := arch.calls()
	require.Len(t, calls, 1)
	want := time.Now().UTC().AddDate(0, 0, -7)
	assert.WithinDuration(t, want, calls[0], time.Minute)
}

func TestArchiveExpiredSwallowsExportError(t *testing.T) {
	a := testApp(config.Defaults())
	arch := &fakeArchiver{err: errors.New("bucket unreachable")}

	// Must not panic or propagate; the loop retries on the next tick.
	a.archiveExpired(context.Background(), &Dependencies{Archiver: arch})

	assert.Len(t, arch.calls(), 1)
}

func TestStartArchiveLoopRunsOnceThenStopsOnCancel(t *testing.T) {
	a := testApp(config.Defaults())
	arch := &fakeArchiver{}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	a.startArchiveLoop(ctx, g, &Dependencies{Archiver: arch})
	cancel()

	require.NoError(t, g.Wait())
	assert.Len(t, arch.calls(), 1)
}

func TestStartArchiveLoopNoopWithoutArchiver(t *testing.T) {
	a := testApp(config.Defaults())

	g, ctx := errgroup.WithContext(context.Background())
	a.startArchiveLoop(ctx, g, &Dependencies{})

	require.NoError(t, g.Wait())
}
