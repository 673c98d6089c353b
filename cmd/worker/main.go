// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/app"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/logging"
)

// The worker consumes automation_sends from RabbitMQ and delivers each logged
// message through its channel provider.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logging.Setup(cfg.Environment, cfg.SentryDSN); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed, continuing without it")
	}
	defer logging.Flush()

	if cfg.AMQPURL == "" {
		logrus.Fatal("AMQP_URL is required for the standalone worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DSN(), db.Options{
		MaxIdleConns: cfg.DBMaxIdleConns,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer conn.Close()

	q, closeQueue, err := app.Queue(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer closeQueue()

	if err := app.DeliveryWorker(conn, cfg).Start(q); err != nil {
		logrus.WithError(err).Fatal("Failed to register consumer")
	}

	logrus.Info("Worker running, waiting for messages...")
	<-ctx.Done()
	logrus.Info("Worker stopping")
}
