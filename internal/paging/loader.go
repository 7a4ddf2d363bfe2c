package paging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CaptionText is the caption that opens every title paging list
const CaptionText = "Title Paging List"

var (
	// ErrNotTitleList is returned when the caption is never found
	ErrNotTitleList = errors.New("file does not appear to be a title paging list")
	// ErrInvalidLine is returned when a line fits no position in the layout
	ErrInvalidLine = errors.New("invalid line")
)

// LineError reports the line that made a report unreadable
type LineError struct {
	Line int
	Text string
	Prev LineType
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d after %s: %s: %q", e.Line, e.Prev, ErrInvalidLine, e.Text)
}

func (e *LineError) Unwrap() error {
	return ErrInvalidLine
}

// Loader turns a title paging list into a report
type Loader struct {
	Matcher  *Matcher
	Enricher Enricher
}

// NewLoader creates a loader; enricher may be nil to skip catalog lookups
func NewLoader(matcher *Matcher, enricher Enricher) *Loader {
	return &Loader{Matcher: matcher, Enricher: enricher}
}

// LoadFile opens and loads the paging list at path
func (l *Loader) LoadFile(ctx context.Context, path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open paging list: %w", err)
	}
	defer file.Close()

	report, err := l.Load(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// Load reads a whole paging list. Any invalid line fails the entire report.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	found := false
	for scanner.Scan() {
		lineNum++
		if strings.TrimSpace(scanner.Text()) == CaptionText {
			found = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read paging list: %w", err)
	}
	if !found {
		return nil, ErrNotTitleList
	}

	assembler := NewAssembler(l.Matcher, l.Enricher)
	lineType := Caption

	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw := scanner.Text()
		next := Classify(raw, lineType)
		if next == Invalid {
			return nil, &LineError{Line: lineNum, Text: raw, Prev: lineType}
		}

		assembler.Feed(ctx, raw, next)
		lineType = next
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read paging list: %w", err)
	}

	report := assembler.Report()
	slog.Debug("Loaded paging list", "lines", lineNum, "records", report.Len())

	return report, nil
}
