package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// dropStampLayout is the date Millennium appends to saved notices, as in .t261019.auton
const dropStampLayout = "060102"

// classify matches name against today's title and item suffixes and returns the basename
func (c *Correlator) classify(name string, now time.Time) (ListKind, string) {
	if c.opts.IgnoreDotfiles && strings.HasPrefix(name, ".") {
		return UnknownList, ""
	}

	stamp := ".t" + now.Format(dropStampLayout) + ".auton"
	if base, ok := strings.CutSuffix(name, c.opts.TitleExt+stamp); ok && base != "" {
		return TitleList, base
	}
	if base, ok := strings.CutSuffix(name, c.opts.ItemExt+stamp); ok && base != "" {
		return ItemList, base
	}
	return UnknownList, ""
}

// correlationKey pairs the title and item lists of one branch and day
func (c *Correlator) correlationKey(basename string, now time.Time) string {
	return basename + now.Format(c.opts.TimestampFormat)
}

// outputPaths returns <output>/<base><Kind>[_<timestamp>].{csv,xml}
func (c *Correlator) outputPaths(basename string, kind ListKind, now time.Time) (csvPath, xmlPath string) {
	name := basename + kind.String()
	if c.opts.TimestampActive {
		name += "_" + now.Format(c.opts.TimestampFormat)
	}
	base := filepath.Join(c.opts.OutputDir, name)
	return base + ".csv", base + ".xml"
}

// archive moves src to dst, copying when they sit on different filesystems,
// and leaves the archived copy group writable.
func archive(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	err := os.Rename(src, dst)
	if errors.Is(err, unix.EXDEV) {
		err = copyAndRemove(src, dst)
	}
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", src, err)
	}

	if err := os.Chmod(dst, 0o664); err != nil {
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}
	return nil
}

func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
