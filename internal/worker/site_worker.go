package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/site-scrape-runner/config"
	"github.com/IliaW/site-scrape-runner/internal/crawler"
	"github.com/IliaW/site-scrape-runner/internal/handler"
	"github.com/IliaW/site-scrape-runner/internal/logging"
	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/IliaW/site-scrape-runner/internal/settings"
	"github.com/IliaW/site-scrape-runner/internal/sites"
)

var ErrSiteIncomplete = errors.New("site incomplete")

// HandlerLoader resolves a site's handler declaration. *handler.Loader implements it.
type HandlerLoader interface {
	Load(path string) (*handler.Loaded, error)
}

// SiteWorker runs one batch: every site under the sites root, every page of a site in list order.
type SiteWorker struct {
	Cfg       *config.Config
	RunCtx    model.RunContext
	Log       *slog.Logger
	Fetcher   crawler.Fetcher
	Loader    HandlerLoader
	Writer    handler.ArtifactWriter
	EventChan chan<- *model.PageEvent // optional
	Now       func() time.Time        // optional
}

type SiteReport struct {
	Name      string
	State     model.SiteState
	Pages     int // pages attempted
	Succeeded int
	Failed    []string // nicknames of failed pages
	Artifacts []string
	Err       error // why the site was aborted, the failing page's error when a page aborted it
}

type RunReport struct {
	RunID string
	Sites []SiteReport
}

func (r *RunReport) Count(state model.SiteState) int {
	n := 0
	for _, s := range r.Sites {
		if s.State == state {
			n++
		}
	}
	return n
}

// Site returns the report of the named site.
func (r *RunReport) Site(name string) (SiteReport, bool) {
	for _, s := range r.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteReport{}, false
}

// Run loads the settings and processes every discovered site. The returned error is set only when the run
// could not start: settings are missing or the sites root can't be read. Site failures are reported in RunReport.
func (w *SiteWorker) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: w.RunCtx.RunID}
	log := logging.Named(w.Log, w.RunCtx.LoggerName("worker"))

	st, err := settings.Load(w.Cfg.Paths.SettingsDir, w.Cfg.SettingsFiles.AllowedResponsesFile,
		w.Cfg.SettingsFiles.HeadersFile, logging.Named(w.Log, w.RunCtx.LoggerName("settings")))
	if err != nil {
		log.Error("failed to load settings. no site will be processed.", slog.String("err", err.Error()))
		return report, err
	}
	osFamily := settings.OSFamily(w.Cfg.WorkerSettings.OSFamily)
	log.Info("settings loaded.", slog.String("os", osFamily))

	discoverer := sites.NewDiscoverer(w.Cfg.Paths.SitesDir, w.Cfg.SiteFiles.PagesFile, w.Cfg.SiteFiles.HandlerFile,
		logging.Named(w.Log, w.RunCtx.LoggerName("sites")))
	siteSeq, err := discoverer.Open()
	if err != nil {
		log.Error("failed to open sites root.", slog.String("err", err.Error()))
		return report, err
	}

	type job struct {
		index int
		site  model.Site
	}
	jobs := make(chan job)
	results := make(map[int]SiteReport)
	var mu sync.Mutex
	wg := &sync.WaitGroup{}
	for i := 0; i < max(w.Cfg.WorkerSettings.MaxWorkers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r := w.runSite(ctx, j.site, st, osFamily)
				mu.Lock()
				results[j.index] = r
				mu.Unlock()
			}
		}()
	}

	total := 0
	for site := range siteSeq {
		if ctx.Err() != nil {
			log.Warn("run cancelled. remaining sites are not processed.")
			break
		}
		jobs <- job{index: total, site: site}
		total++
	}
	close(jobs)
	wg.Wait()

	for i := 0; i < total; i++ {
		report.Sites = append(report.Sites, results[i])
	}
	log.Info("run finished.", slog.Int("sites", total),
		slog.Int("completed", report.Count(model.Completed)),
		slog.Int("aborted", report.Count(model.Aborted)),
		slog.Int("header lookups", st.Headers.Resolved()))

	return report, nil
}

// runSite contains every failure of one site, including panics, in its report.
func (w *SiteWorker) runSite(ctx context.Context, site model.Site, st *settings.Settings, osFamily string) (r SiteReport) {
	log := logging.Named(w.Log, w.RunCtx.LoggerName("worker", site.Name))
	r = SiteReport{Name: site.Name, State: model.Discovered}
	defer func() {
		if p := recover(); p != nil {
			log.Error("PANIC!", slog.Any("err", p))
			r.State = model.Aborted
			r.Err = fmt.Errorf("panic: %v", p)
		}
	}()
	log.Info("processing site.", slog.String("dir", site.Dir))

	if !site.Complete() {
		r.State = model.Aborted
		r.Err = fmt.Errorf("%w: missing %s", ErrSiteIncomplete, strings.Join(site.Missing, ", "))
		log.Warn("site is missing required files. skipping.", slog.Any("missing", site.Missing))
		return r
	}
	r.State = model.Validated

	siteOut := filepath.Join(w.Cfg.Paths.OutputDir, site.Name)
	if err := os.MkdirAll(siteOut, 0o755); err != nil {
		r.State = model.Aborted
		r.Err = fmt.Errorf("create output dir: %w", err)
		log.Error("failed to create site output dir.", slog.String("err", err.Error()))
		return r
	}
	r.State = model.OutputDirReady

	pages, err := ReadPages(site.PagesPath)
	if err != nil {
		r.State = model.Aborted
		r.Err = err
		log.Error("failed to read page list.", slog.String("err", err.Error()))
		return r
	}
	r.State = model.Processing
	log.Info("page list loaded.", slog.Int("pages", len(pages)))

	for _, page := range pages {
		if err = ctx.Err(); err != nil {
			r.State = model.Aborted
			r.Err = err
			log.Warn("run cancelled. remaining pages are not processed.")
			return r
		}
		r.Pages++
		event, err := w.runPage(ctx, site, siteOut, page, st, osFamily)
		w.emit(ctx, event)
		r.Artifacts = append(r.Artifacts, event.Artifacts...)
		if event.Outcome == model.PageProcessed {
			r.Succeeded++
			continue
		}
		r.Failed = append(r.Failed, page.Nickname)
		if w.Cfg.WorkerSettings.AbortSiteOnPageFailure {
			r.State = model.Aborted
			r.Err = err
			log.Error("aborting remaining pages of the site.", slog.String("page", page.Nickname),
				slog.Int("remaining", len(pages)-r.Pages))
			return r
		}
	}

	r.State = model.Completed
	log.Info("site completed.", slog.Int("pages", r.Pages), slog.Int("succeeded", r.Succeeded),
		slog.Int("failed", len(r.Failed)))
	return r
}

func (w *SiteWorker) runPage(ctx context.Context, site model.Site, siteOut string, page model.PageEntry,
	st *settings.Settings, osFamily string) (*model.PageEvent, error) {
	log := logging.Named(w.Log, w.RunCtx.LoggerName("worker", site.Name, page.Nickname))
	event := &model.PageEvent{
		RunID:     w.RunCtx.RunID,
		Site:      site.Name,
		Nickname:  page.Nickname,
		URL:       page.URL,
		Timestamp: w.now(),
	}
	fail := func(outcome model.PageOutcome, err error) (*model.PageEvent, error) {
		event.Outcome = outcome
		event.Error = err.Error()
		log.Error("page failed.", slog.String("outcome", string(outcome)), slog.String("err", err.Error()))
		return event, err
	}

	profile, ok := st.Headers.Resolve(page.Browser, osFamily)
	if !ok {
		return fail(model.PageFetchFailed, &crawler.FetchError{URL: page.URL,
			Reason: fmt.Sprintf("no header profile for browser %q on %s", page.Browser, osFamily)})
	}

	doc, status, err := w.Fetcher.Fetch(ctx, page.URL, profile.Headers, st.Allowed)
	event.StatusCode = status
	if err != nil {
		return fail(model.PageFetchFailed, err)
	}

	loaded, err := w.Loader.Load(site.HandlerPath)
	if err != nil {
		return fail(model.PageHandlerFailed, err)
	}

	req := &handler.Request{
		Document:     doc,
		Page:         page,
		SiteName:     site.Name,
		OutputDir:    siteOut,
		StatusCode:   status,
		Log:          log,
		Writer:       w.Writer,
		StrictWrites: w.Cfg.WorkerSettings.FailPageOnWriteError,
		Now:          w.Now,
	}
	err = handler.Execute(ctx, loaded.Name, loaded.Handler, req)
	event.Artifacts = req.Artifacts()
	if err != nil {
		return fail(model.PageHandlerFailed, err)
	}

	event.Outcome = model.PageProcessed
	log.Info("page processed.", slog.String("handler", loaded.Name), slog.Int("artifacts", len(event.Artifacts)))
	return event, nil
}

func (w *SiteWorker) emit(ctx context.Context, event *model.PageEvent) {
	if w.EventChan == nil {
		return
	}
	select {
	case w.EventChan <- event:
	case <-ctx.Done():
	}
}

func (w *SiteWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
