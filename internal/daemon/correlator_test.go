package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alivesay/squire/internal/itemlist"
	"github.com/alivesay/squire/internal/ledger"
	"github.com/alivesay/squire/internal/publish"
	"github.com/alivesay/squire/internal/supervise"
	"github.com/alivesay/squire/internal/watch"
)

type fakeWatcher struct {
	batches [][]watch.Event
	closed  bool
}

func (f *fakeWatcher) Poll(time.Duration) ([]watch.Event, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

func (f *fakeWatcher) Close() error {
	f.closed = true
	return nil
}

type fakeProcess struct {
	pid    int
	code   int
	done   bool
	stderr string
}

func (p *fakeProcess) PID() int          { return p.pid }
func (p *fakeProcess) Poll() (int, bool) { return p.code, p.done }
func (p *fakeProcess) Stderr() string    { return p.stderr }
func (p *fakeProcess) finish(code int)   { p.code, p.done = code, true }

type fakeLauncher struct {
	requests []supervise.ParseRequest
	procs    []*fakeProcess
	err      error
}

func (f *fakeLauncher) Launch(req supervise.ParseRequest) (supervise.Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	p := &fakeProcess{pid: 4000 + len(f.procs)}
	f.procs = append(f.procs, p)
	return p, nil
}

type fakePublisher struct {
	jobs   []publish.Job
	ctxErr []error
	panic  bool
}

func (f *fakePublisher) Publish(ctx context.Context, job publish.Job) error {
	if f.panic {
		panic("stylesheet exploded")
	}
	f.jobs = append(f.jobs, job)
	f.ctxErr = append(f.ctxErr, ctx.Err())
	return nil
}

type fakeLedger struct {
	entries []ledger.Entry
}

func (f *fakeLedger) Record(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	f.entries = append(f.entries, e)
	return e, nil
}

const (
	titleFile = "North_Hills.paginglist.t261019.auton"
	itemFile  = "North_Hills.itemlist.t261019.auton"
)

type harness struct {
	c         *Correlator
	opts      Options
	clock     time.Time
	watcher   *fakeWatcher
	launcher  *fakeLauncher
	publisher *fakePublisher
	ledger    *fakeLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		opts: Options{
			DropDir:         t.TempDir(),
			ArchiveDir:      t.TempDir(),
			OutputDir:       t.TempDir(),
			TitleExt:        ".paginglist",
			ItemExt:         ".itemlist",
			IgnoreDotfiles:  true,
			TimestampFormat: "2006-01-02",
			TimestampActive: true,
			ItemListTimeout: 15 * time.Minute,
			StaleAfter:      24 * time.Hour,
			PollInterval:    time.Millisecond,
		},
		clock:     time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC),
		watcher:   &fakeWatcher{},
		launcher:  &fakeLauncher{},
		publisher: &fakePublisher{},
		ledger:    &fakeLedger{},
	}
	h.c = New(h.opts, h.watcher, h.launcher, h.publisher, h.ledger)
	h.c.now = func() time.Time { return h.clock }
	h.c.parseItems = func(string) ([]itemlist.Item, error) {
		return []itemlist.Item{
			{Title: "Paging lists", CallNumber: "025.6 P", Barcode: "31234001234567", Location: "North Hills"},
			{Title: "Circulation", CallNumber: "025.1 C", Barcode: "31234007654321", Location: "North Hills"},
		}, nil
	}
	return h
}

func (h *harness) drop(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.opts.DropDir, name), []byte("list"), 0o600))
	h.c.HandleFile(context.Background(), name)
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func TestClassify(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name     string
		file     string
		wantKind ListKind
		wantBase string
	}{
		{"title list", titleFile, TitleList, "North_Hills"},
		{"item list", itemFile, ItemList, "North_Hills"},
		{"yesterday's suffix", "North_Hills.paginglist.t261018.auton", UnknownList, ""},
		{"dotfile", ".North_Hills.paginglist.t261019.auton", UnknownList, ""},
		{"no basename", ".paginglist.t261019.auton", UnknownList, ""},
		{"unrelated", "notes.txt", UnknownList, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, base := h.c.classify(tt.file, h.clock)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantBase, base)
		})
	}
}

func TestOutputPaths(t *testing.T) {
	h := newHarness(t)
	csvPath, xmlPath := h.c.outputPaths("North_Hills", TitleList, h.clock)
	assert.Equal(t, filepath.Join(h.opts.OutputDir, "North_HillsTitle_2026-10-19.csv"), csvPath)
	assert.Equal(t, filepath.Join(h.opts.OutputDir, "North_HillsTitle_2026-10-19.xml"), xmlPath)

	h.c.opts.TimestampActive = false
	csvPath, _ = h.c.outputPaths("North_Hills", ItemList, h.clock)
	assert.Equal(t, filepath.Join(h.opts.OutputDir, "North_HillsItem.csv"), csvPath)
	// the key carries the date either way
	assert.Equal(t, "North_Hills2026-10-19", h.c.correlationKey("North_Hills", h.clock))
}

func TestTitleListIsArchivedAndLaunched(t *testing.T) {
	h := newHarness(t)
	h.drop(t, titleFile)

	archived := filepath.Join(h.opts.ArchiveDir, titleFile)
	info, err := os.Stat(archived)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o664), info.Mode().Perm())
	_, err = os.Stat(filepath.Join(h.opts.DropDir, titleFile))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.Len(t, h.launcher.requests, 1)
	assert.Equal(t, archived, h.launcher.requests[0].InputPath)
	assert.Equal(t, filepath.Join(h.opts.OutputDir, "North_HillsTitle_2026-10-19.xml"), h.launcher.requests[0].XMLPath)

	require.Len(t, h.c.Jobs(), 1)
	assert.Equal(t, RunningTitleParse, h.c.Jobs()[0].State)
	assert.Equal(t, "North_Hills2026-10-19", h.c.Jobs()[0].Key)
}

func TestItemListIsCachedAndMerged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drop(t, titleFile)
	h.drop(t, itemFile)

	entry, ok := h.c.Cache().Get("North_Hills2026-10-19")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)
	assert.FileExists(t, entry.CSVPath)
	assert.FileExists(t, entry.XMLPath)

	h.launcher.procs[0].finish(0)
	h.c.Tick(ctx)
	require.Len(t, h.c.Jobs(), 1)
	assert.Equal(t, WaitingForItems, h.c.Jobs()[0].State)
	assert.Empty(t, h.publisher.jobs)

	h.advance(time.Second)
	h.c.Tick(ctx)
	assert.Empty(t, h.c.Jobs())
	assert.Zero(t, h.c.Cache().Len())

	require.Len(t, h.publisher.jobs, 1)
	got := h.publisher.jobs[0]
	assert.True(t, got.HasItemList)
	assert.Equal(t, "2026-10-19", got.Timestamp)
	assert.Equal(t, entry.XMLPath, got.ItemXML)
	assert.Equal(t, filepath.Join(h.opts.ArchiveDir, itemFile), got.ItemArchive)

	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, ledger.StatusCached, h.ledger.entries[0].Status)
	assert.Equal(t, ledger.KindItem, h.ledger.entries[0].Kind)
}

func TestItemListArrivingWhileWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drop(t, titleFile)
	h.launcher.procs[0].finish(0)
	h.c.Tick(ctx)

	h.advance(5 * time.Minute)
	h.drop(t, itemFile)
	h.c.Tick(ctx)

	require.Len(t, h.publisher.jobs, 1)
	assert.True(t, h.publisher.jobs[0].HasItemList)
}

func TestItemListTimeoutBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drop(t, titleFile)
	h.launcher.procs[0].finish(0)
	h.c.Tick(ctx)

	h.advance(h.opts.ItemListTimeout - time.Second)
	h.c.Tick(ctx)
	assert.Empty(t, h.publisher.jobs)
	require.Len(t, h.c.Jobs(), 1)

	h.advance(time.Second)
	h.c.Tick(ctx)
	require.Len(t, h.publisher.jobs, 1)
	assert.False(t, h.publisher.jobs[0].HasItemList)
	assert.Empty(t, h.c.Jobs())
}

func TestPublishOutlivesShutdown(t *testing.T) {
	h := newHarness(t)

	h.drop(t, titleFile)
	h.launcher.procs[0].finish(0)
	h.c.Tick(context.Background())

	// SIGTERM lands while the tick that reconciles the job is running
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.advance(h.opts.ItemListTimeout)
	h.c.Tick(ctx)

	require.Len(t, h.publisher.jobs, 1)
	if err := h.publisher.ctxErr[0]; err != nil {
		t.Errorf("Publish got a cancelled context: %v", err)
	}
	assert.Empty(t, h.c.Jobs())
}

func TestStaleItemListsArePurged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.c.Cache().Set(&CacheEntry{Key: "Central2026-10-18", CreatedAt: h.clock.Add(-h.opts.StaleAfter - time.Second)})
	h.c.Cache().Set(&CacheEntry{Key: "Media2026-10-18", CreatedAt: h.clock.Add(-h.opts.StaleAfter)})

	// nothing is purged while no title run has finished
	h.drop(t, titleFile)
	h.c.Tick(ctx)
	assert.Equal(t, 2, h.c.Cache().Len())

	h.launcher.procs[0].finish(0)
	h.c.Tick(ctx)

	_, ok := h.c.Cache().Get("Central2026-10-18")
	assert.False(t, ok)
	_, ok = h.c.Cache().Get("Media2026-10-18")
	assert.True(t, ok)
}

func TestFailedTitleRunIsDropped(t *testing.T) {
	h := newHarness(t)

	h.drop(t, titleFile)
	h.launcher.procs[0].stderr = "invalid line 9"
	h.launcher.procs[0].finish(1)
	h.c.Tick(context.Background())

	assert.Empty(t, h.c.Jobs())
	assert.Empty(t, h.publisher.jobs)
	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, ledger.StatusFailed, h.ledger.entries[0].Status)
	assert.Contains(t, h.ledger.entries[0].Detail, "invalid line 9")
}

func TestLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = errors.New("exec format error")

	h.drop(t, titleFile)

	assert.Empty(t, h.c.Jobs())
	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, ledger.KindTitle, h.ledger.entries[0].Kind)
	assert.Equal(t, ledger.StatusFailed, h.ledger.entries[0].Status)
}

func TestItemParseFailure(t *testing.T) {
	h := newHarness(t)
	h.c.parseItems = func(string) ([]itemlist.Item, error) {
		return nil, errors.New("unreadable")
	}

	h.drop(t, itemFile)

	assert.Zero(t, h.c.Cache().Len())
	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, ledger.StatusFailed, h.ledger.entries[0].Status)
}

func TestTickDispatchesCloseWriteEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.opts.DropDir, titleFile), []byte("list"), 0o600))
	h.watcher.batches = [][]watch.Event{{
		{Name: "ignored.paginglist.t261019.auton", Mask: 0x2},
		{Name: titleFile, Mask: watch.CloseWrite},
	}}

	h.c.Tick(context.Background())

	require.Len(t, h.launcher.requests, 1)
	assert.Equal(t, filepath.Join(h.opts.ArchiveDir, titleFile), h.launcher.requests[0].InputPath)
}

func TestPanicDropsOnlyThatJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drop(t, titleFile)
	h.launcher.procs[0].finish(0)
	h.c.Tick(ctx)

	h.publisher.panic = true
	h.advance(h.opts.ItemListTimeout)
	assert.NotPanics(t, func() { h.c.Tick(ctx) })
	assert.Empty(t, h.c.Jobs())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.c.Run(ctx))
	assert.True(t, h.watcher.closed)
}

func TestResultCache(t *testing.T) {
	cache := NewResultCache()
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	cache.Set(&CacheEntry{Key: "a", Count: 1, CreatedAt: now})
	cache.Set(&CacheEntry{Key: "a", Count: 2, CreatedAt: now})
	assert.Equal(t, 1, cache.Len())

	entry, ok := cache.Take("a")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)

	_, ok = cache.Take("a")
	assert.False(t, ok)

	cache.Set(&CacheEntry{Key: "b", CreatedAt: now})
	cache.Delete("b")
	assert.Zero(t, cache.Len())
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "waiting-for-items", WaitingForItems.String())
	assert.Equal(t, "unknown", JobState(42).String())
	assert.Equal(t, "Title", TitleList.String())
}
