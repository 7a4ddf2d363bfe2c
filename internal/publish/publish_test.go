package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alivesay/squire/internal/ledger"
	"github.com/alivesay/squire/internal/notify"
)

type fakeRenderer struct {
	fail map[string]bool
}

func (f *fakeRenderer) Render(_ context.Context, stylesheet, input, output string) error {
	if f.fail[input] {
		return errors.New("xsltproc exited 6")
	}
	return os.WriteFile(output, []byte("<html>"+filepath.Base(stylesheet)+"</html>"), 0o644)
}

type fakeStats struct {
	branch string
	day    time.Weekday
	count  int
}

func (f *fakeStats) SetBranchCount(_ context.Context, branch string, day time.Weekday, count int) error {
	f.branch, f.day, f.count = branch, day, count
	return nil
}

type fakeLedger struct {
	entries []ledger.Entry
}

func (f *fakeLedger) Record(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	f.entries = append(f.entries, e)
	return e, nil
}

type fakeMailer struct {
	sent []notify.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fixture struct {
	job       Job
	publisher *Publisher
	stats     *fakeStats
	ledger    *fakeLedger
	mailer    *fakeMailer
	renderer  *fakeRenderer
}

func newFixture(t *testing.T, withItems bool) *fixture {
	t.Helper()
	out := t.TempDir()
	archive := t.TempDir()

	write := func(dir, name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	job := Job{
		CorrelationKey: "North_Hills2026-10-19",
		Basename:       "North_Hills",
		Timestamp:      "2026-10-19",
		TitleArchive:   write(archive, "North_Hills.paginglist.t261019.auton", "raw titles"),
		TitleCSV:       write(out, "North_HillsTitle_2026-10-19.csv", "# Requested\n"),
		TitleXML:       write(out, "North_HillsTitle_2026-10-19.xml", `<?xml version="1.0"?><paging_list location="North Hills" count="7"></paging_list>`),
	}
	if withItems {
		job.HasItemList = true
		job.ItemArchive = write(archive, "North_Hills.itemlist.t261019.auton", "raw items")
		job.ItemCSV = write(out, "North_HillsItem_2026-10-19.csv", "Location\n")
		job.ItemXML = write(out, "North_HillsItem_2026-10-19.xml", `<paging_list count="3"></paging_list>`)
	}

	f := &fixture{
		job:      job,
		stats:    &fakeStats{},
		ledger:   &fakeLedger{},
		mailer:   &fakeMailer{},
		renderer: &fakeRenderer{fail: map[string]bool{}},
	}
	f.publisher = &Publisher{
		ListsDir:        t.TempDir(),
		ListsURL:        "http://lists.example.org:8000/",
		TitleStylesheet: "squiret2xhtml.xsl",
		ItemStylesheet:  "squirei2xhtml.xsl",
		From:            "squired@example.org",
		HelpDeskEmail:   "help@example.org",
		HelpDeskPhone:   "x85100",
		Recipients:      map[string][]string{"North Hills": {"nh@example.org"}},
		Renderer:        f.renderer,
		Stats:           f.stats,
		Ledger:          f.ledger,
		Mailer:          f.mailer,
		Now:             func() time.Time { return time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC) },
	}
	return f
}

func TestPublishWithItemList(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.publisher.Publish(context.Background(), f.job))

	listDir := filepath.Join(f.publisher.ListsDir, "North_Hills")
	target, err := os.Readlink(filepath.Join(listDir, "latest_title.html"))
	require.NoError(t, err)
	assert.Equal(t, HTMLPath(f.job.TitleXML), target)

	target, err = os.Readlink(filepath.Join(listDir, "latest_item_raw.txt"))
	require.NoError(t, err)
	assert.Equal(t, f.job.ItemArchive, target)

	assert.Equal(t, "North Hills", f.stats.branch)
	assert.Equal(t, time.Monday, f.stats.day)
	assert.Equal(t, 7, f.stats.count)

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, ledger.StatusPublished, f.ledger.entries[0].Status)
	assert.True(t, f.ledger.entries[0].HasItemList)
	assert.Equal(t, 7, f.ledger.entries[0].RecordCount)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "North Hills Paging Lists for 2026-10-19", msg.Subject)
	assert.Equal(t, []string{"nh@example.org"}, msg.To)
	assert.Contains(t, msg.Text, "http://lists.example.org:8000/North_Hills/index.html")
	assert.Len(t, msg.Attachments, 4)
}

func TestPublishRelinksExistingLinks(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.publisher.Publish(context.Background(), f.job))
	require.NoError(t, f.publisher.Publish(context.Background(), f.job))

	_, err := os.Lstat(filepath.Join(f.publisher.ListsDir, "North_Hills", "latest_item.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Len(t, f.mailer.sent[1].Attachments, 2)
}

func TestPublishContinuesAfterFailures(t *testing.T) {
	f := newFixture(t, true)
	f.renderer.fail[f.job.ItemXML] = true
	f.mailer.err = errors.New("relay refused")

	err := f.publisher.Publish(context.Background(), f.job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render items")
	assert.Contains(t, err.Error(), "mail")

	// steps after the failures still ran, and the missing item page is simply not attached
	require.Len(t, f.ledger.entries, 1)
	require.Len(t, f.mailer.sent, 1)
	assert.Len(t, f.mailer.sent[0].Attachments, 3)
}

func TestPublishWithoutRecipients(t *testing.T) {
	f := newFixture(t, false)
	f.publisher.Recipients = nil

	require.NoError(t, f.publisher.Publish(context.Background(), f.job))
	assert.Empty(t, f.mailer.sent)
}

func TestListCount(t *testing.T) {
	f := newFixture(t, false)
	count, err := ListCount(f.job.TitleXML)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = ListCount(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
