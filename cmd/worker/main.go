// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/outreach-dispatch/internal/app"
	"github.com/unclebandit/outreach-dispatch/internal/config"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zl.Sync()
	log := logger.NewZapAdapter(zl).WithFields(map[string]interface{}{"service": cfg.App.Name + "-worker"})

	if err := checkDriver(cfg.Queue); err != nil {
		log.WithError(err).Error("worker cannot start", nil)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed", nil)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.StartConsumer(ctx); err != nil {
		log.WithError(err).Error("failed to register consumer", nil)
		os.Exit(1)
	}

	log.Info("worker running, waiting for run jobs", map[string]interface{}{"queue": cfg.Queue.Name})
	<-ctx.Done()
	log.Info("worker stopping, waiting for in-flight runs", nil)
	a.Drain()
}

// checkDriver rejects the memory driver, whose jobs never leave the server
// process.
func checkDriver(q config.QueueConfig) error {
	if q.Driver != "rabbitmq" {
		return fmt.Errorf("worker needs queue.driver=rabbitmq, got %q", q.Driver)
	}
	if q.Name == "" {
		return errors.New("queue.name is empty")
	}
	return nil
}
