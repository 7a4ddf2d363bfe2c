// Package export serializes parsed paging lists as CSV, XML and Parquet.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// TimestampLayout is the timestamp attribute written on list roots
const TimestampLayout = "2006-01-02 15:04:05.000000"

const utf8BOM = "\xEF\xBB\xBF"

// WriteFile renders into memory and replaces path atomically, so readers never
// see a partial list. An empty path writes to stdout.
func WriteFile(path string, render func(io.Writer) error) error {
	if path == "" {
		return render(os.Stdout)
	}

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// normalizeName drops spaces and dots so "St. Johns" and "St Johns" compare equal
func normalizeName(s string) string {
	return strings.NewReplacer(" ", "", ".", "").Replace(s)
}
