package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/site-scrape-runner/config"
	"github.com/IliaW/site-scrape-runner/internal/aws_s3"
	"github.com/IliaW/site-scrape-runner/internal/broker"
	"github.com/IliaW/site-scrape-runner/internal/crawler"
	"github.com/IliaW/site-scrape-runner/internal/export"
	"github.com/IliaW/site-scrape-runner/internal/handler"
	"github.com/IliaW/site-scrape-runner/internal/logging"
	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/IliaW/site-scrape-runner/internal/settings"
	"github.com/IliaW/site-scrape-runner/internal/worker"
	"github.com/google/uuid"
)

var (
	cfg    *config.Config
	log    *slog.Logger
	runCtx model.RunContext
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	startedAt := time.Now()
	runCtx = model.RunContext{
		AppName:   cfg.ServiceName,
		LogsDir:   logging.TodaysDir(cfg.Paths.LogsDir, startedAt),
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}
	var logFile io.Closer
	var err error
	log, logFile, err = logging.Setup(runCtx.LogsDir, logging.Options{Level: cfg.LogLevel, Type: cfg.LogType})
	if err != nil {
		slog.Error("failed to set up logging.", slog.String("err", err.Error()))
		return 1
	}
	defer logFile.Close()
	slog.SetDefault(log)
	log = logging.Named(log, runCtx.AppName).With(slog.String("run_id", runCtx.RunID))
	log.Info("starting run.", slog.String("env", cfg.Env), slog.String("version", cfg.Version),
		slog.String("sites", cfg.Paths.SitesDir))

	var mirror export.Mirror
	if cfg.S3Settings.Enabled {
		s3, err := aws_s3.NewS3BucketClient(ctx, cfg.S3Settings, logging.Named(log, runCtx.LoggerName("s3")))
		if err != nil {
			log.Error("failed to set up s3 mirror.", slog.String("err", err.Error()))
			return 1
		}
		mirror = s3
	}

	siteWorker := &worker.SiteWorker{
		Cfg:     cfg,
		RunCtx:  runCtx,
		Log:     log,
		Fetcher: crawler.NewPageFetcher(cfg.FetcherSettings, logging.Named(log, runCtx.LoggerName("fetcher"))),
		Loader:  handler.NewLoader(handler.DefaultRegistry(), logging.Named(log, runCtx.LoggerName("handler"))),
		Writer:  export.NewWriter(cfg.Paths.OutputDir, mirror, logging.Named(log, runCtx.LoggerName("export"))),
	}

	kafkaWg := &sync.WaitGroup{}
	if cfg.KafkaSettings.Enabled {
		eventChan := make(chan *model.PageEvent, 100)
		siteWorker.EventChan = eventChan
		kafkaWg.Add(1)
		go broker.NewKafkaProducer(eventChan, cfg.KafkaSettings.Producer,
			logging.Named(log, runCtx.LoggerName("kafka")), kafkaWg).Run()
		// The producer drains eventChan after the run and stops.
		defer func() {
			close(eventChan)
			log.Info("close eventChan.")
			kafkaWg.Wait()
		}()
	}

	report, err := siteWorker.Run(ctx)
	if err != nil {
		if errors.Is(err, settings.ErrConfigurationMissing) {
			log.Error("settings are missing. no site was processed.", slog.String("err", err.Error()))
		}
		return 1
	}
	for _, s := range report.Sites {
		attrs := []any{slog.String("site", s.Name), slog.String("state", s.State.String()),
			slog.Int("pages", s.Pages), slog.Int("succeeded", s.Succeeded)}
		if s.Err != nil {
			attrs = append(attrs, slog.String("err", s.Err.Error()))
		}
		log.Info("site summary.", attrs...)
	}
	log.Info("run completed.", slog.Int("sites", len(report.Sites)),
		slog.Int("aborted", report.Count(model.Aborted)),
		slog.Duration("elapsed", time.Since(runCtx.StartedAt)))

	return 0
}
