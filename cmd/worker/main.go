package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightservice/config"
	"github.com/Domenick1991/flightservice/internal/bootstrap"
	"github.com/Domenick1991/flightservice/internal/email"
	"github.com/Domenick1991/flightservice/internal/kafka"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/Domenick1991/flightservice/internal/service/flights"
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

	infra, err := bootstrap.OpenInfra(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("open infrastructure")
	}
	defer infra.Close()

	flightService := flights.NewFlightService(
		repository.NewFlightRepository(infra.DB),
		repository.NewAirlineRepository(infra.DB),
		infra.Balance,
		infra.Balance,
		infra.Notifier,
		flights.WithCache(infra.Cache),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.EventsTopic)
	defer consumer.Close()
	dispatcher := email.NewDispatcher(email.NewSender(), infra.Balance, cfg.Worker.EmailAttempts, time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Consume(gctx, dispatcher.Handle) })
	g.Go(func() error { return infra.Events.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Worker.StatusSweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				changed, err := flightService.AdvanceStatuses(gctx)
				if err != nil {
					logrus.WithError(err).Warn("advance flight statuses")
					continue
				}
				if len(changed) > 0 {
					logrus.WithField("count", len(changed)).Info("flight statuses advanced")
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Fatal("worker stopped")
	}
	logrus.Info("worker stopped")
}
