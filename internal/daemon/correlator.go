// Package daemon watches the drop directory, runs title parses in the
// background and pairs each finished title list with the same day's item list.
package daemon

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alivesay/squire/internal/export"
	"github.com/alivesay/squire/internal/itemlist"
	"github.com/alivesay/squire/internal/ledger"
	"github.com/alivesay/squire/internal/publish"
	"github.com/alivesay/squire/internal/supervise"
	"github.com/alivesay/squire/internal/watch"
)

// Options controls file naming and timing
type Options struct {
	DropDir    string
	ArchiveDir string
	OutputDir  string

	TitleExt       string
	ItemExt        string
	IgnoreDotfiles bool

	TimestampFormat string
	TimestampActive bool
	WriteBOM        bool

	ItemListTimeout time.Duration
	StaleAfter      time.Duration
	PollInterval    time.Duration
}

type eventSource interface {
	Poll(timeout time.Duration) ([]watch.Event, error)
	Close() error
}

type jobPublisher interface {
	Publish(ctx context.Context, job publish.Job) error
}

type runLedger interface {
	Record(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

// Correlator owns the job list and the item result cache. Everything runs on
// the goroutine calling Run, so neither needs locking.
type Correlator struct {
	opts      Options
	watcher   eventSource
	launcher  supervise.Launcher
	publisher jobPublisher
	ledger    runLedger

	jobs  []*Job
	cache *ResultCache

	now        func() time.Time
	parseItems func(path string) ([]itemlist.Item, error)
	command    string
}

// New builds a correlator. ledger may be nil.
func New(opts Options, watcher eventSource, launcher supervise.Launcher, publisher jobPublisher, runs runLedger) *Correlator {
	command := "parse"
	if l, ok := launcher.(*supervise.ExecLauncher); ok {
		command = l.Command
	}
	return &Correlator{
		opts:       opts,
		watcher:    watcher,
		launcher:   launcher,
		publisher:  publisher,
		ledger:     runs,
		cache:      NewResultCache(),
		now:        time.Now,
		parseItems: itemlist.ParseFile,
		command:    command,
	}
}

// Jobs returns the title jobs still in flight
func (c *Correlator) Jobs() []*Job {
	return c.jobs
}

// Cache exposes the item list results waiting for a title run
func (c *Correlator) Cache() *ResultCache {
	return c.cache
}

// Run loops until ctx is cancelled. Title runs still going at shutdown are
// left to finish on their own.
func (c *Correlator) Run(ctx context.Context) error {
	slog.Info("Watching for paging lists", "dir", c.opts.DropDir, "title_ext", c.opts.TitleExt, "item_ext", c.opts.ItemExt)

	for ctx.Err() == nil {
		c.Tick(ctx)
	}

	c.shutdown()
	return nil
}

func (c *Correlator) shutdown() {
	slog.Info("Shutting down", "jobs_in_flight", len(c.jobs), "cached_item_lists", c.cache.Len())
	for _, job := range c.jobs {
		if job.Process != nil {
			slog.Info("Leaving title run behind", "list", job.Basename, "pid", job.Process.PID(), "state", job.State)
		}
	}
	if err := c.watcher.Close(); err != nil {
		slog.Error("Failed to close watcher", "error", err)
	}
}

// Tick handles pending file events, then polls every job once
func (c *Correlator) Tick(ctx context.Context) {
	events, err := c.watcher.Poll(c.opts.PollInterval)
	if err != nil {
		slog.Error("Failed to read file events", "error", err)
	}

	for _, ev := range events {
		if ev.Mask&watch.CloseWrite == 0 {
			continue
		}
		name := ev.Name
		c.guard("handle file", func() { c.HandleFile(ctx, name) })
	}

	c.pollJobs(ctx)
}

// guard keeps one bad step from taking the loop down
func (c *Correlator) guard(step string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic", "step", step, "panic", r)
			panicked = true
		}
	}()
	fn()
	return false
}

// HandleFile reacts to a file in the drop directory being closed after writing
func (c *Correlator) HandleFile(ctx context.Context, name string) {
	now := c.now()
	kind, basename := c.classify(name, now)

	switch kind {
	case TitleList:
		c.startTitle(ctx, name, basename, now)
	case ItemList:
		c.cacheItems(ctx, name, basename, now)
	default:
		slog.Debug("Ignoring file", "file", name)
	}
}

func (c *Correlator) startTitle(ctx context.Context, name, basename string, now time.Time) {
	job := &Job{
		Key:        c.correlationKey(basename, now),
		Basename:   basename,
		Timestamp:  now.Format(c.opts.TimestampFormat),
		SourcePath: filepath.Join(c.opts.DropDir, name),
		State:      Detected,
		DetectedAt: now,
	}
	job.ArchivePath = filepath.Join(c.opts.ArchiveDir, name)
	job.CSVPath, job.XMLPath = c.outputPaths(basename, TitleList, now)

	slog.Info("Title paging list detected", "file", name, "key", job.Key)

	if err := archive(job.SourcePath, job.ArchivePath); err != nil {
		slog.Error("Failed to archive title list", "file", name, "error", err)
	} else {
		job.State = Archived
	}

	proc, err := c.launcher.Launch(supervise.ParseRequest{
		InputPath: job.ArchivePath,
		CSVPath:   job.CSVPath,
		XMLPath:   job.XMLPath,
	})
	if err != nil {
		slog.Error("Failed to start title parse", "file", name, "error", err)
		job.State = Failed
		c.record(ctx, ledger.Entry{
			CorrelationKey: job.Key,
			Kind:           ledger.KindTitle,
			Basename:       basename,
			Status:         ledger.StatusFailed,
			ArchivePath:    job.ArchivePath,
			Detail:         err.Error(),
		})
		return
	}

	job.Process = proc
	job.State = RunningTitleParse
	c.jobs = append(c.jobs, job)
	slog.Info("Title parse started", "list", basename, "pid", proc.PID())
}

func (c *Correlator) cacheItems(ctx context.Context, name, basename string, now time.Time) {
	key := c.correlationKey(basename, now)
	src := filepath.Join(c.opts.DropDir, name)
	dst := filepath.Join(c.opts.ArchiveDir, name)

	slog.Info("Item paging list detected", "file", name, "key", key)

	if err := archive(src, dst); err != nil {
		slog.Error("Failed to archive item list", "file", name, "error", err)
	}

	items, err := c.parseItems(dst)
	if err != nil {
		slog.Error("Failed to parse item list", "file", name, "error", err)
		c.record(ctx, ledger.Entry{
			CorrelationKey: key,
			Kind:           ledger.KindItem,
			Basename:       basename,
			Status:         ledger.StatusFailed,
			ArchivePath:    dst,
			Detail:         err.Error(),
		})
		return
	}

	csvPath, xmlPath := c.outputPaths(basename, ItemList, now)
	if err := export.WriteFile(csvPath, func(w io.Writer) error {
		return export.WriteItemCSV(w, items, c.opts.WriteBOM)
	}); err != nil {
		slog.Error("Failed to write item CSV", "file", csvPath, "error", err)
	}
	if err := export.WriteFile(xmlPath, func(w io.Writer) error {
		return export.WriteXML(w, export.NewItemList(items, basename, now))
	}); err != nil {
		slog.Error("Failed to write item XML", "file", xmlPath, "error", err)
	}

	c.cache.Set(&CacheEntry{
		Key:         key,
		ArchivePath: dst,
		CSVPath:     csvPath,
		XMLPath:     xmlPath,
		Count:       len(items),
		CreatedAt:   now,
	})
	c.record(ctx, ledger.Entry{
		CorrelationKey: key,
		Kind:           ledger.KindItem,
		Basename:       basename,
		Status:         ledger.StatusCached,
		RecordCount:    len(items),
		ArchivePath:    dst,
	})
	slog.Info("Item list cached", "key", key, "items", len(items))
}

func (c *Correlator) pollJobs(ctx context.Context) {
	remaining := c.jobs[:0]
	for _, job := range c.jobs {
		keep := false
		if c.guard("poll job", func() { keep = c.step(ctx, job) }) {
			job.State = Failed
			keep = false
		}
		if keep {
			remaining = append(remaining, job)
		}
	}
	clear(c.jobs[len(remaining):])
	c.jobs = remaining
}

// step advances one job and reports whether it stays in the list
func (c *Correlator) step(ctx context.Context, job *Job) bool {
	if _, done := job.Process.Poll(); !done {
		return true
	}

	now := c.now()
	for _, key := range c.cache.PurgeOlderThan(now, c.opts.StaleAfter) {
		slog.Info("Purged stale item list", "key", key)
	}

	switch job.State {
	case RunningTitleParse:
		if err := supervise.Failure(job.Process, c.command); err != nil {
			slog.Error("Title parse failed", "list", job.Basename, "error", err)
			job.State = Failed
			c.record(ctx, ledger.Entry{
				CorrelationKey: job.Key,
				Kind:           ledger.KindTitle,
				Basename:       job.Basename,
				Status:         ledger.StatusFailed,
				ArchivePath:    job.ArchivePath,
				Detail:         err.Error(),
			})
			return false
		}
		job.State = WaitingForItems
		job.WaitStartedAt = now
		slog.Info("Title parse finished, waiting for item list", "list", job.Basename, "key", job.Key)
		return true

	case WaitingForItems:
		if entry, ok := c.cache.Take(job.Key); ok {
			slog.Info("Item list matched", "key", job.Key)
			c.reconcile(ctx, job, entry)
			return false
		}
		if now.Sub(job.WaitStartedAt) >= c.opts.ItemListTimeout {
			slog.Info("No item list arrived, publishing title list alone", "key", job.Key, "waited", now.Sub(job.WaitStartedAt))
			c.reconcile(ctx, job, nil)
			return false
		}
		return true
	}

	slog.Warn("Dropping job in unexpected state", "list", job.Basename, "state", job.State)
	return false
}

func (c *Correlator) reconcile(ctx context.Context, job *Job, items *CacheEntry) {
	job.State = Reconciled

	pj := publish.Job{
		CorrelationKey: job.Key,
		Basename:       job.Basename,
		Timestamp:      job.Timestamp,
		TitleArchive:   job.ArchivePath,
		TitleCSV:       job.CSVPath,
		TitleXML:       job.XMLPath,
	}
	if items != nil {
		pj.HasItemList = true
		pj.ItemArchive = items.ArchivePath
		pj.ItemCSV = items.CSVPath
		pj.ItemXML = items.XMLPath
	}

	if err := c.publisher.Publish(context.WithoutCancel(ctx), pj); err != nil {
		slog.Error("Post-processing finished with errors", "list", job.Basename, "error", err)
		return
	}
	slog.Info("Paging lists published", "list", job.Basename, "with_items", pj.HasItemList)
}

func (c *Correlator) record(ctx context.Context, e ledger.Entry) {
	if c.ledger == nil {
		return
	}
	if _, err := c.ledger.Record(ctx, e); err != nil {
		slog.Error("Failed to record run", "key", e.CorrelationKey, "status", e.Status, "error", err)
	}
}
