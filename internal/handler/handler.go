// Package handler defines the per-site extraction contract and resolves a site's declared handler.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/IliaW/site-scrape-runner/internal/export"
	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/IliaW/site-scrape-runner/internal/tabular"
	"github.com/PuerkitoBio/goquery"
)

// Handler turns one fetched page into zero or more saved tables.
// Optional page columns may be absent or empty and must be checked with PageEntry.Field.
type Handler interface {
	Process(ctx context.Context, req *Request) error
}

// ProcessFunc adapts a plain function to Handler. Go plugins export their entry point with this signature.
type ProcessFunc func(ctx context.Context, req *Request) error

func (f ProcessFunc) Process(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// ArtifactWriter persists a table. *export.Writer implements it.
type ArtifactWriter interface {
	Write(ctx context.Context, table *tabular.Table, dir, filename, format string) (string, error)
}

type Request struct {
	Document     *goquery.Document
	Page         model.PageEntry
	SiteName     string
	OutputDir    string // the site's output root, <output_root>/<site_name>
	StatusCode   int
	Log          *slog.Logger
	Writer       ArtifactWriter
	StrictWrites bool             // a failed Save is returned to the handler instead of only being logged
	Now          func() time.Time // nil means time.Now

	artifacts []string
}

// Save writes table to <OutputDir>/<y>/<m>/<d>/<timestamp>-<nickname>.<format>.
// Without StrictWrites a write failure is logged and Save returns "", nil.
func (r *Request) Save(ctx context.Context, table *tabular.Table, format string) (string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	t := now()
	nickname := model.SanitizeName(r.Page.Nickname)
	path, err := r.Writer.Write(ctx, table, export.PartitionDir(r.OutputDir, t), export.ArtifactName(t, nickname, format),
		format)
	// two saves for one page inside the same microsecond
	for i := 0; i < 3 && errors.Is(err, fs.ErrExist); i++ {
		t = t.Add(time.Microsecond)
		path, err = r.Writer.Write(ctx, table, export.PartitionDir(r.OutputDir, t),
			export.ArtifactName(t, nickname, format), format)
	}
	if err != nil {
		r.Log.Error("failed to save output.", slog.String("err", err.Error()))
		if r.StrictWrites {
			return "", err
		}
		return "", nil
	}
	r.artifacts = append(r.artifacts, path)
	return path, nil
}

// Artifacts lists the files saved through this request.
func (r *Request) Artifacts() []string {
	return r.artifacts
}

func (r *Request) Title() string {
	if r.Document == nil {
		return ""
	}
	return r.Document.Find("title").First().Text()
}

type HandlerLoadError struct {
	Path string
	Err  error
}

func (e *HandlerLoadError) Error() string {
	return fmt.Sprintf("failed to load handler from %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *HandlerLoadError) Unwrap() error { return e.Err }

type HandlerExecutionError struct {
	Handler string
	Err     error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Handler, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// Execute runs h and converts a returned error or a panic into *HandlerExecutionError.
func Execute(ctx context.Context, name string, h Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerExecutionError{Handler: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := h.Process(ctx, req); err != nil {
		return &HandlerExecutionError{Handler: name, Err: err}
	}
	return nil
}
