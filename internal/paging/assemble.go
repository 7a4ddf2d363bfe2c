package paging

import (
	"context"
	"strings"
)

// ErrorValue replaces header fields that could not be extracted
const ErrorValue = "ERROR"

// Enricher adds live catalog data to a record before it is finalized
type Enricher interface {
	Enrich(ctx context.Context, r *Record)
}

// Assembler accumulates classified lines into records
type Assembler struct {
	matcher  *Matcher
	enricher Enricher
	current  *Record
	last     LineType
	report   *Report
}

// NewAssembler creates an assembler writing into a fresh report. enricher may be nil.
func NewAssembler(matcher *Matcher, enricher Enricher) *Assembler {
	return &Assembler{
		matcher:  matcher,
		enricher: enricher,
		last:     Caption,
		report:   NewReport(),
	}
}

// Report returns the records finalized so far
func (a *Assembler) Report() *Report {
	return a.report
}

// Feed applies one classified line to the record in progress
func (a *Assembler) Feed(ctx context.Context, line string, t LineType) {
	line = strings.TrimSpace(line)

	switch t {
	case BlockLine1:
		a.current = &Record{}
		a.parseHeader(line)
	case BlockLine2:
		a.parseTitle(line)
	case BlockLine3:
		a.record().Publishing = strings.TrimSuffix(line, ".")
	case BlockLine4:
		r := a.record()
		r.PickupLocation = line
		r.Volume = ""
	case BlockLine5:
		// a volume line pushed everything down one slot
		r := a.record()
		r.Volume = r.Publishing
		r.Publishing = r.PickupLocation
		r.PickupLocation = line
	case Blank:
		if a.last == BlockLine3 || a.last == BlockLine4 || a.last == BlockLine5 {
			a.finalize(ctx)
		}
	}

	a.last = t
}

func (a *Assembler) record() *Record {
	if a.current == nil {
		a.current = &Record{}
	}
	return a.current
}

func (a *Assembler) parseHeader(line string) {
	r := a.current
	r.Location, r.CallNumber, r.BibNumber = a.matcher.SplitHeader(line)

	if r.Location == "" {
		r.Location = ErrorValue
	}
	if r.CallNumber == "" {
		r.CallNumber = ErrorValue
	}
	if r.BibNumber == "" {
		r.BibNumber = ErrorValue
	}
}

func (a *Assembler) parseTitle(line string) {
	r := a.record()

	title, author, found := strings.Cut(line, "/")
	r.Title = trimTrailingPunct(title)
	if found {
		r.Author = trimTrailingPunct(author)
	}
}

func trimTrailingPunct(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, ",") {
		s = s[:len(s)-1]
	}
	return s
}

func (a *Assembler) finalize(ctx context.Context) {
	r := a.current
	a.current = nil
	if r == nil {
		return
	}

	// three body lines: the last one was the pickup location, not publisher info
	if a.last == BlockLine3 {
		r.PickupLocation = r.Publishing
		r.Publishing = ""
	}

	// later occurrences only bump the count, so only first sightings are enriched
	if a.report.Has(r.BibNumber) {
		a.report.add(r)
		return
	}

	if a.enricher != nil {
		a.enricher.Enrich(ctx, r)
	}
	a.report.add(r)
}
