// Package main wires together the product parser daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/api"
	"github.com/okharin/mv-parser/internal/archive"
	archivegcs "github.com/okharin/mv-parser/internal/archive/gcs"
	archivelocal "github.com/okharin/mv-parser/internal/archive/local"
	archivemem "github.com/okharin/mv-parser/internal/archive/memory"
	"github.com/okharin/mv-parser/internal/clock/system"
	"github.com/okharin/mv-parser/internal/config"
	"github.com/okharin/mv-parser/internal/events"
	eventsmem "github.com/okharin/mv-parser/internal/events/memory"
	eventspubsub "github.com/okharin/mv-parser/internal/events/pubsub"
	"github.com/okharin/mv-parser/internal/extract"
	"github.com/okharin/mv-parser/internal/fetch/browser"
	"github.com/okharin/mv-parser/internal/fetch/static"
	"github.com/okharin/mv-parser/internal/hash/sha256"
	"github.com/okharin/mv-parser/internal/id/uuid"
	"github.com/okharin/mv-parser/internal/logging"
	"github.com/okharin/mv-parser/internal/metrics"
	"github.com/okharin/mv-parser/internal/policy/ratelimit"
	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/seen"
	"github.com/okharin/mv-parser/internal/service"
	"github.com/okharin/mv-parser/internal/sink"
	"github.com/okharin/mv-parser/internal/status"
	"github.com/okharin/mv-parser/internal/store"
	storefile "github.com/okharin/mv-parser/internal/store/file"
	storepg "github.com/okharin/mv-parser/internal/store/postgres"
	"github.com/okharin/mv-parser/internal/urlsource"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	blobs, closeArchive, err := newArchive(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	publisher, closeEvents, err := newEvents(ctx, cfg.Events)
	if err != nil {
		logger.Fatal("events init failed", zap.Error(err))
	}

	seenStore, err := seen.Open(cfg.Seen.Path, logger.Named("seen"))
	if err != nil {
		logger.Fatal("seen store init failed", zap.Error(err))
	}

	fetcher, err := browser.New(browser.Config{
		Sessions:   cfg.Pool.Workers,
		Timeout:    cfg.Fetch.Timeout,
		MinDelay:   cfg.Fetch.MinDelay,
		MaxDelay:   cfg.Fetch.MaxDelay,
		UserAgents: cfg.Fetch.UserAgents,
		Headless:   cfg.Fetch.Headless,
	}, logger.Named("fetch"))
	if err != nil {
		logger.Fatal("browser init failed", zap.Error(err))
	}

	parserTracker := status.NewTracker(cfg.Status.Dir, "parser", clock, logger.Named("status"))
	updaterTracker := status.NewTracker(cfg.Status.Dir, "url-updater", clock, logger.Named("status"))
	monitor := service.NewMonitor(parserTracker, blobs, hasher, cfg.Run.BatchSize, logger.Named("monitor"))

	retry := scrape.NewExponentialRetryPolicy(cfg.Pool.MaxRetries, cfg.Pool.RetryBaseDelay, cfg.Pool.RetryMaxDelay)
	pool := scrape.NewPool(fetcher, extract.New(logger.Named("extract")), retry, scrape.PoolConfig{
		Workers: cfg.Pool.Workers,
		OnOutcome: func(o scrape.Outcome) {
			monitor.Observe(o)
			label := "success"
			if !o.Success() {
				label = string(o.Kind)
			}
			metrics.ObservePage(label)
		},
		OnFailureHTML: monitor.CapturePage,
	}, logger.Named("pool"))

	writer := sink.NewWriter(cfg.Sink.OutputPath, logger.Named("sink"))
	var submitter sink.ProductSubmitter
	if cfg.Sink.API.Enabled {
		submitter = sink.NewSubmitter(sink.SubmitterConfig{
			URL:        cfg.Sink.API.URL,
			Timeout:    cfg.Sink.API.Timeout,
			MaxRetries: cfg.Sink.API.MaxRetries,
			UserAgents: cfg.Fetch.UserAgents,
		}, logger.Named("submitter"))
	}
	resultSink := sink.New(writer, submitter, logger.Named("sink"))

	controller := scrape.NewController(pool, resultSink, idGen, clock, scrape.ControllerConfig{
		Deadline: cfg.Run.Deadline,
	}, logger.Named("controller"))

	var sitemapUA string
	if len(cfg.Fetch.UserAgents) > 0 {
		sitemapUA = cfg.Fetch.UserAgents[0]
	}
	sitemapClient := static.New(static.Config{
		UserAgent: sitemapUA,
		Timeout:   cfg.Fetch.Timeout,
		Limiter:   ratelimit.New(ratelimit.Config{RPS: cfg.Source.MaxRPS, Burst: 1}),
	})
	updater := urlsource.NewUpdater(sitemapClient, urlsource.Config{
		SitemapURL: cfg.Source.SitemapURL,
		LinksDir:   cfg.Source.LinksDir,
	}, logger.Named("urlsource"))

	parser := service.NewParser(ctx, service.ParserDeps{
		Runner:  controller,
		Source:  urlsource.NewSource(cfg.Source.LinksDir),
		Seen:    seenStore,
		Store:   st,
		Events:  publisher,
		Tracker: parserTracker,
		Monitor: monitor,
		IDs:     idGen,
	}, service.ParserConfig{}, logger.Named("parser"))
	urlUpdater := service.NewURLUpdater(ctx, updater, updaterTracker, logger.Named("url-updater"))

	apiServer := api.NewServer(parser, urlUpdater, st, parserTracker, updaterTracker, clock, api.Config{
		StaleAfter: cfg.Status.StaleAfter,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// The signal context already cancelled active jobs; wait for their
	// persistence windows to drain.
	if err := parser.Wait(shutdownCtx); err != nil {
		logger.Warn("parse run still draining", zap.Error(err))
	}
	if err := urlUpdater.Wait(shutdownCtx); err != nil {
		logger.Warn("url update still draining", zap.Error(err))
	}

	fetcher.Close()
	if err := st.Close(shutdownCtx); err != nil {
		logger.Error("store close error", zap.Error(err))
	}
	closeEvents()
	closeArchive()
	logger.Info("shutdown complete")
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Provider {
	case "none", "":
		return store.Noop{}, nil
	case "file":
		return storefile.New(cfg.File.Dir)
	case "postgres":
		return storepg.New(ctx, storepg.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "none", "":
		return archive.Noop{}, noop, nil
	case "memory":
		return archivemem.New(), noop, nil
	case "local":
		a, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Local.Dir})
		if err != nil {
			return nil, nil, err
		}
		return a, noop, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		a, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			client.Close() //nolint:errcheck // already failing
			return nil, nil, err
		}
		return a, func() {
			if err := client.Close(); err != nil {
				zap.L().Warn("storage client close error", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

func newEvents(ctx context.Context, cfg config.EventsConfig) (events.Publisher, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "none", "":
		return events.Noop{}, noop, nil
	case "memory":
		return eventsmem.New(), noop, nil
	case "pubsub":
		pub, err := eventspubsub.New(ctx, eventspubsub.Config{
			ProjectID: cfg.Pubsub.ProjectID,
			TopicID:   cfg.Pubsub.Topic,
		})
		if err != nil {
			return nil, nil, err
		}
		return pub, func() {
			if err := pub.Close(); err != nil {
				zap.L().Warn("pubsub close error", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}
