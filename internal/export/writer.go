// Package export persists extraction results under the site/date partitioned output tree.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/IliaW/site-scrape-runner/internal/tabular"
)

const TimestampLayout = "2006-01-02-150405.000000"

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Mirror receives a copy of every artifact written locally.
type Mirror interface {
	WriteArtifact(ctx context.Context, localPath, key string) string
}

type Writer struct {
	root   string
	mirror Mirror
	log    *slog.Logger
}

// NewWriter returns a Writer rooted at the output root. mirror may be nil.
func NewWriter(root string, mirror Mirror, log *slog.Logger) *Writer {
	return &Writer{root: root, mirror: mirror, log: log}
}

func (w *Writer) Root() string {
	return w.root
}

// PartitionDir returns <siteOut>/<year>/<month>/<day> for t. Month and day are not zero padded.
func PartitionDir(siteOut string, t time.Time) string {
	return filepath.Join(siteOut, strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
}

func ArtifactName(t time.Time, nickname, format string) string {
	return t.Format(TimestampLayout) + "-" + nickname + "." + format
}

// Write serializes table into dir/filename. The file must not exist yet. Returns the written path.
func (w *Writer) Write(ctx context.Context, table *tabular.Table, dir, filename, format string) (string, error) {
	path := filepath.Join(dir, filename)
	if table == nil {
		return "", &WriteError{Path: path, Err: errors.New("nil table")}
	}
	if format != tabular.FormatCSV && format != tabular.FormatXLSX {
		return "", &WriteError{Path: path, Err: fmt.Errorf("%w: %q", tabular.ErrUnsupportedFormat, format)}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if format == tabular.FormatCSV {
		err = tabular.WriteCSV(f, table)
	} else {
		err = tabular.WriteXLSX(f, table)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			w.log.Warn("failed to remove partial artifact.", slog.String("path", path),
				slog.String("err", rmErr.Error()))
		}
		return "", &WriteError{Path: path, Err: err}
	}
	w.log.Info("artifact saved.", slog.String("path", path), slog.Int("rows", len(table.Rows)))

	if w.mirror != nil {
		key, err := filepath.Rel(w.root, path)
		if err != nil {
			key = filepath.Base(path)
		}
		if link := w.mirror.WriteArtifact(ctx, path, filepath.ToSlash(key)); link != "" {
			w.log.Debug("artifact mirrored.", slog.String("link", link))
		}
	}

	return path, nil
}
