// Package publish turns a finished title run (and its item list, when one
// arrived) into HTML pages, "latest" links, statistics and branch mail.
package publish

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alivesay/squire/internal/ledger"
	"github.com/alivesay/squire/internal/notify"
)

// Job is everything post-processing needs about one reconciled title list
type Job struct {
	CorrelationKey string
	Basename       string
	Timestamp      string

	TitleArchive string
	TitleCSV     string
	TitleXML     string

	HasItemList bool
	ItemArchive string
	ItemCSV     string
	ItemXML     string
}

// Branch is the display name of the branch the job belongs to
func (j Job) Branch() string {
	return strings.ReplaceAll(j.Basename, "_", " ")
}

// Renderer transforms list XML into HTML
type Renderer interface {
	Render(ctx context.Context, stylesheet, input, output string) error
}

// XSLTProc renders with the xsltproc command line tool
type XSLTProc struct {
	Path string
}

func (x XSLTProc) Render(ctx context.Context, stylesheet, input, output string) error {
	cmd := exec.CommandContext(ctx, x.Path, "-o", output, stylesheet, input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("xsltproc failed for %s: %w: %s", input, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type statsRecorder interface {
	SetBranchCount(ctx context.Context, branch string, day time.Weekday, count int) error
}

type runLedger interface {
	Record(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

type mailSender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Publisher runs every post-processing step. Stats, Ledger and Mailer are optional.
type Publisher struct {
	ListsDir        string
	ListsURL        string
	TitleStylesheet string
	ItemStylesheet  string

	From          string
	HelpDeskEmail string
	HelpDeskPhone string
	Recipients    map[string][]string

	Renderer Renderer
	Stats    statsRecorder
	Ledger   runLedger
	Mailer   mailSender
	Now      func() time.Time
}

// HTMLPath is where the rendered page for an XML export goes
func HTMLPath(xmlPath string) string {
	return strings.TrimSuffix(xmlPath, filepath.Ext(xmlPath)) + ".html"
}

// Publish runs each step in order. A failed step is logged and later steps still
// run; the joined errors are returned for the caller's records.
func (p *Publisher) Publish(ctx context.Context, job Job) error {
	var errs []error
	step := func(name string, err error) {
		if err != nil {
			slog.Error("Post-processing step failed", "step", name, "list", job.Basename, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	titleHTML := HTMLPath(job.TitleXML)
	step("render title", p.render(ctx, p.TitleStylesheet, job.TitleXML, titleHTML))
	step("link title", p.link(job.Basename, "latest_title.html", titleHTML))
	step("link raw title", p.link(job.Basename, "latest_title_raw.txt", job.TitleArchive))

	var itemHTML string
	if job.HasItemList {
		itemHTML = HTMLPath(job.ItemXML)
		step("render items", p.render(ctx, p.ItemStylesheet, job.ItemXML, itemHTML))
		step("link items", p.link(job.Basename, "latest_item.html", itemHTML))
		step("link raw items", p.link(job.Basename, "latest_item_raw.txt", job.ItemArchive))
	}

	count, err := ListCount(job.TitleXML)
	step("count", err)

	if p.Stats != nil && err == nil {
		step("stats", p.Stats.SetBranchCount(ctx, job.Branch(), p.now().Weekday(), count))
	}

	if p.Ledger != nil {
		_, lerr := p.Ledger.Record(ctx, ledger.Entry{
			CorrelationKey: job.CorrelationKey,
			Kind:           ledger.KindTitle,
			Basename:       job.Basename,
			Status:         ledger.StatusPublished,
			RecordCount:    count,
			HasItemList:    job.HasItemList,
			ArchivePath:    job.TitleArchive,
		})
		step("ledger", lerr)
	}

	if p.Mailer != nil {
		step("mail", p.mail(ctx, job, titleHTML, itemHTML))
	}

	return errors.Join(errs...)
}

func (p *Publisher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Publisher) render(ctx context.Context, stylesheet, input, output string) error {
	if p.Renderer == nil {
		return errors.New("no renderer configured")
	}
	return p.Renderer.Render(ctx, stylesheet, input, output)
}

// link points <lists_dir>/<basename>/<name> at target, replacing any previous link
func (p *Publisher) link(basename, name, target string) error {
	dir := filepath.Join(p.ListsDir, basename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create lists directory: %w", err)
	}

	link := filepath.Join(dir, name)
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old link: %w", err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link %s: %w", name, err)
	}
	return nil
}

// ListCount reads the count attribute from the root of a list XML file
func ListCount(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open list xml: %w", err)
	}
	defer file.Close()

	var root struct {
		Count int `xml:"count,attr"`
	}
	dec := xml.NewDecoder(file)
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, fmt.Errorf("failed to read list xml %s: %w", path, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if err := dec.DecodeElement(&root, &start); err != nil {
				return 0, fmt.Errorf("failed to decode list xml %s: %w", path, err)
			}
			return root.Count, nil
		}
	}
}
