// Package sites enumerates the site directories under the sites root.
package sites

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/IliaW/site-scrape-runner/internal/model"
)

// ErrSitesRootUnreadable is returned when the sites root can't be listed at all.
var ErrSitesRootUnreadable = errors.New("sites root unreadable")

const readBatch = 32

type Discoverer struct {
	root        string
	pagesFile   string
	handlerFile string
	log         *slog.Logger
}

func NewDiscoverer(root, pagesFile, handlerFile string, log *slog.Logger) *Discoverer {
	return &Discoverer{root: root, pagesFile: pagesFile, handlerFile: handlerFile, log: log}
}

// Open checks that the sites root can be read and returns a lazy sequence of its site directories.
// Hidden entries and plain files are skipped. Sites keep directory enumeration order.
func (d *Discoverer) Open() (iter.Seq[model.Site], error) {
	dir, err := os.Open(d.root)
	if err != nil {
		return nil, errors.Join(ErrSitesRootUnreadable, err)
	}
	info, err := dir.Stat()
	if err != nil || !info.IsDir() {
		dir.Close()
		if err == nil {
			err = errors.New(d.root + " is not a directory")
		}
		return nil, errors.Join(ErrSitesRootUnreadable, err)
	}

	return func(yield func(model.Site) bool) {
		defer dir.Close()
		for {
			entries, err := dir.ReadDir(readBatch)
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".") || !d.isDir(e) {
					continue
				}
				if !yield(d.inspect(e.Name())) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					d.log.Error("failed to list sites.", slog.String("root", d.root), slog.String("err", err.Error()))
				}
				return
			}
		}
	}, nil
}

func (d *Discoverer) inspect(dirName string) model.Site {
	site := model.Site{
		Name:        model.SanitizeName(dirName),
		Dir:         filepath.Join(d.root, dirName),
		PagesPath:   filepath.Join(d.root, dirName, d.pagesFile),
		HandlerPath: filepath.Join(d.root, dirName, d.handlerFile),
	}
	d.log.Info("checking required site files.", slog.String("site", site.Name),
		slog.String("pages", d.pagesFile), slog.String("handler", d.handlerFile))
	if !isFile(site.PagesPath) {
		site.Missing = append(site.Missing, d.pagesFile)
	}
	if !isFile(site.HandlerPath) {
		site.Missing = append(site.Missing, d.handlerFile)
	}
	return site
}

// isDir follows symlinks so a linked site directory is still a site.
func (d *Discoverer) isDir(e fs.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return e.IsDir()
	}
	info, err := os.Stat(filepath.Join(d.root, e.Name()))
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
