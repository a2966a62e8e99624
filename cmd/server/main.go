package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/catalog"
	"marketpulse/internal/config"
	"marketpulse/internal/logging"
	"marketpulse/internal/metrics"
	"marketpulse/internal/normalize"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/sources"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	sel, err := cfg.StartSelection()
	if err != nil {
		return err
	}
	set, err := sources.Build(cfg, logging.Component(log, "http"))
	if err != nil {
		return err
	}

	m := metrics.New()
	store := aggregate.NewStore()
	sched, err := scheduler.New(sel, scheduler.Options{
		Sources:    set.Sources,
		Stream:     set.Stream,
		Normalizer: normalize.New(),
		Aggregator: aggregate.New(set.Policy),
		Store:      store,
		Backoff: scheduler.Backoff{
			Initial:    cfg.Scheduler.Backoff.Initial,
			Max:        cfg.Scheduler.Backoff.Max,
			Multiplier: cfg.Scheduler.Backoff.Multiplier,
		},
		SweepInterval: cfg.Scheduler.SweepInterval,
		Metrics:       m,
		Log:           log,
	})
	if err != nil {
		return err
	}

	a := &api{
		store:     store,
		sched:     sched,
		metrics:   m,
		log:       logging.Component(log, "api"),
		timeout:   cfg.Server.RequestTimeout,
		upgrader:  newUpgrader(),
		pingEvery: 30 * time.Second,
	}
	if cfg.Catalog.Enabled {
		a.catalog = catalog.New(set.Listing, cfg.Catalog.TTL)
	}

	handler := withJSONHeaders(withGzip(recoverPanic(a.log, limitBody(cfg.Server.MaxBodyBytes, newRouter(a)))))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "selection": sel.String()}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
