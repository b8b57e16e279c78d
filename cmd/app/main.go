package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightservice/api"
	"github.com/Domenick1991/flightservice/config"
	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/bootstrap"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/metrics"
	"github.com/Domenick1991/flightservice/internal/realtime"
	"github.com/Domenick1991/flightservice/internal/reconcile"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/Domenick1991/flightservice/internal/service/airlines"
	"github.com/Domenick1991/flightservice/internal/service/flights"
	"github.com/Domenick1991/flightservice/internal/service/purchase"
	"github.com/Domenick1991/flightservice/internal/service/ratings"
	"github.com/Domenick1991/flightservice/internal/tracing"
	"github.com/Domenick1991/flightservice/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()
	if *cfgPath == "" {
		*cfgPath = os.Getenv("CONFIG_PATH")
	}
	if *cfgPath == "" {
		*cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logging.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Configure(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logrus.WithError(err).Fatal("configure tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	infra, err := bootstrap.OpenInfra(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("open infrastructure")
	}
	defer infra.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	journal, err := reconcile.Open(cfg.Reconciliation.JournalPath)
	if err != nil {
		logrus.WithError(err).Fatal("open reconciliation journal")
	}
	defer journal.Close()

	pool := worker.NewPool(worker.Config{
		Workers:    cfg.Purchase.Workers,
		QueueSize:  cfg.Purchase.QueueSize,
		JobTimeout: cfg.Purchase.JobTimeout(),
	}, m)

	flightRepo := repository.NewFlightRepository(infra.DB)
	ticketRepo := repository.NewTicketRepository(infra.DB)
	ratingRepo := repository.NewRatingRepository(infra.DB)
	airlineRepo := repository.NewAirlineRepository(infra.DB)

	flightService := flights.NewFlightService(flightRepo, airlineRepo, infra.Balance, infra.Balance, infra.Notifier,
		flights.WithCache(infra.Cache),
		flights.WithMetrics(m),
	)
	purchaseService := purchase.NewService(flightRepo, ticketRepo, infra.Balance, pool, reconcile.NewRecorder(journal, m), infra.Notifier,
		purchase.WithProcessingDelay(cfg.Purchase.ProcessingDelay()),
		purchase.WithCache(infra.Cache),
		purchase.WithMetrics(m),
	)
	ratingService := ratings.NewRatingService(flightRepo, ticketRepo, ratingRepo)
	airlineService := airlines.NewAirlineService(airlineRepo)

	hub := realtime.NewHub()
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return infra.Events.Run(gctx) })
	g.Go(func() error { return realtime.Bridge(gctx, infra.Stream, cfg.Realtime.Topic, hub) })
	g.Go(func() error {
		return bootstrap.Run(gctx, cfg, verifier, reg,
			api.NewFlightHandler(flightService),
			api.NewTicketHandler(purchaseService),
			api.NewRatingHandler(ratingService),
			api.NewAirlineHandler(airlineService),
			api.NewStreamHandler(hub, 15*time.Second),
		)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Fatal("server stopped")
	}
	logrus.Info("shutdown complete")
}
