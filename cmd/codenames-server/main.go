package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/codenames-server/internal/archive"
	"github.com/park285/codenames-server/internal/board"
	"github.com/park285/codenames-server/internal/boardimg"
	"github.com/park285/codenames-server/internal/cardcorpus"
	appcfg "github.com/park285/codenames-server/internal/config"
	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/httpapi"
	"github.com/park285/codenames-server/internal/identity"
	"github.com/park285/codenames-server/internal/notify"
	"github.com/park285/codenames-server/internal/obslog"
	"github.com/park285/codenames-server/internal/session"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/turn"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(obslog.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		ToConsole: cfg.Log.ToConsole,
		ToFile:    cfg.Log.ToFile,
		File:      cfg.Log.File,
		Caller:    cfg.Log.Caller,
	})
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rdb, err := store.Connect(cctx, cfg.RedisURL)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	sessions := store.NewRedisStore(rdb,
		store.WithTTL(cfg.SessionTTL),
		store.WithMaxAttempts(cfg.StoreMaxRetries),
		store.WithLogger(logger.Named("store")),
	)

	corpus, err := cardcorpus.New(cfg.CardsDir)
	if err != nil {
		return err
	}
	boards, err := board.NewGenerator(corpus, board.Layout{Team0: cfg.Team0Cards, Team1: cfg.Team1Cards})
	if err != nil {
		return err
	}

	hub := notify.NewHub(logger.Named("hub"))
	notifiers := notify.Multi{hub}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL,
			notify.WithRetry(cfg.WebhookRetries),
			notify.WithWebhookLogger(logger.Named("webhook")),
		))
		logger.Info("webhook_enabled", zap.String("url", cfg.WebhookURL))
	}

	svc, err := session.NewService(session.Deps{
		Store:    sessions,
		Boards:   boards,
		Identity: identity.NewDirectory(),
		Notifier: notifiers,
		Logger:   logger.Named("session"),
	}, session.Config{
		DefaultTiming: domain.Timing{
			HintDuration:  cfg.HintTime,
			GuessDuration: cfg.GuessTime,
			MaxRounds:     cfg.MaxRounds,
		},
		Languages:     cfg.Languages,
		BcryptCost:    cfg.BcryptCost,
		FinishedGrace: cfg.FinishedGrace,
		IdleTTL:       cfg.SessionTTL,
	})
	if err != nil {
		return err
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		svc.AttachArchive(repo)
		logger.Info("archive_enabled")
	}

	sched := turn.NewScheduler(turn.Options{
		Workers:     cfg.SchedulerWorkers,
		FireTimeout: cfg.TimerTimeout,
		Logger:      logger.Named("turn"),
	})
	sched.Attach(svc)
	svc.AttachTimer(sched)
	defer sched.Close()

	if _, err := svc.ResumeScheduling(ctx); err != nil {
		logger.Warn("resume_scheduling_error", zap.Error(err))
	}

	handler := httpapi.NewHandler(svc,
		httpapi.WithHub(hub),
		httpapi.WithRenderer(boardimg.NewRenderer()),
		httpapi.WithLogger(logger.Named("http")),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep(gctx, svc, cfg.SweepInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown_start")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}

// sweep periodically deletes finished and abandoned sessions.
func sweep(ctx context.Context, svc *session.Service, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.SweepFinished(ctx)
			if err != nil {
				logger.Warn("sweep_error", zap.Error(err))
			}
			if n > 0 {
				logger.Info("sweep_done", zap.Int("removed", n))
			}
		}
	}
}
