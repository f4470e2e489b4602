package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/backtax"
	"goflare.io/chargeprocessor/config"
	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/fraud"
	"goflare.io/chargeprocessor/reconcile"
	"goflare.io/chargeprocessor/server"
)

const (
	backtaxRunTimeout    = 30 * time.Minute
	eventRetryRunTimeout = 5 * time.Minute
)

type application struct {
	config       *config.Config
	logger       *zap.Logger
	conn         driver.PostgresPool
	server       *server.Server
	eventManager *processor.EventManager
	dispatcher   *processor.Dispatcher
	reconciler   *reconcile.Reconciler
	backtax      *backtax.Reconciler
	reviews      *fraud.NATSQueue
	reviewer     *fraud.Reviewer
}

func newApplication(
	appConfig *config.Config,
	logger *zap.Logger,
	conn driver.PostgresPool,
	srv *server.Server,
	em *processor.EventManager,
	dispatcher *processor.Dispatcher,
	reconciler *reconcile.Reconciler,
	backtaxReconciler *backtax.Reconciler,
	reviews *fraud.NATSQueue,
	reviewer *fraud.Reviewer,
) *application {
	return &application{
		config:       appConfig,
		logger:       logger,
		conn:         conn,
		server:       srv,
		eventManager: em,
		dispatcher:   dispatcher,
		reconciler:   reconciler,
		backtax:      backtaxReconciler,
		reviews:      reviews,
		reviewer:     reviewer,
	}
}

func (app *application) run() error {
	if err := driver.Migrate(context.Background(), app.conn); err != nil {
		return err
	}

	app.reconciler.Register(app.eventManager)
	app.dispatcher.Run()
	app.server.OnShutdown(app.dispatcher.Stop)

	if err := app.eventManager.SubscribeToEvents(app.dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to charge events: %w", err)
	}
	if _, err := app.reviews.Consume(app.reviewer.Review); err != nil {
		return fmt.Errorf("failed to subscribe to fraud reviews: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(app.config.Backtax.Schedule, app.collectBacktax); err != nil {
		return fmt.Errorf("invalid backtax schedule %q: %w", app.config.Backtax.Schedule, err)
	}
	if _, err := scheduler.AddFunc(app.config.Events.RetrySchedule, app.retryEvents); err != nil {
		return fmt.Errorf("invalid event retry schedule %q: %w", app.config.Events.RetrySchedule, err)
	}
	scheduler.Start()
	app.server.OnShutdown(func() { <-scheduler.Stop().Done() })

	app.logger.Info("Charge processor started", zap.String("address", config.ServerStartPort))
	return app.server.Run(config.ServerStartPort)
}

func (app *application) collectBacktax() {
	ctx, cancel := context.WithTimeout(context.Background(), backtaxRunTimeout)
	defer cancel()

	settled, err := app.backtax.CollectPending(ctx)
	if err != nil {
		app.logger.Error("Backtax collection finished with errors", zap.Int("settled", settled), zap.Error(err))
		return
	}
	app.logger.Info("Backtax collection finished", zap.Int("settled", settled))
}

func (app *application) retryEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), eventRetryRunTimeout)
	defer cancel()

	handled, err := app.reconciler.RetryPending(ctx)
	if err != nil {
		app.logger.Error("Event retry sweep finished with errors", zap.Int("handled", handled), zap.Error(err))
		return
	}
	if handled > 0 {
		app.logger.Info("Event retry sweep finished", zap.Int("handled", handled))
	}
}
