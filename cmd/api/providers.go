package main

import (
	"go.uber.org/zap"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/backtax"
	"goflare.io/chargeprocessor/config"
	"goflare.io/chargeprocessor/credit"
	"goflare.io/chargeprocessor/disputes"
	"goflare.io/chargeprocessor/event"
	"goflare.io/chargeprocessor/exchange"
	"goflare.io/chargeprocessor/fraud"
	"goflare.io/chargeprocessor/handlers"
	"goflare.io/chargeprocessor/merchant"
	"goflare.io/chargeprocessor/purchase"
	"goflare.io/chargeprocessor/reconcile"
	"goflare.io/chargeprocessor/refund"
	"goflare.io/chargeprocessor/server"
	"goflare.io/chargeprocessor/transfer"
)

func provideDispatcher(appConfig *config.Config, em *processor.EventManager, logger *zap.Logger) *processor.Dispatcher {
	return processor.NewDispatcher(appConfig.Worker.MaxWorkers, appConfig.Worker.QueueSize, em.ProcessEvent, logger)
}

func provideChargeReconciler(
	appConfig *config.Config,
	events event.Service,
	purchases purchase.Service,
	disputeService disputes.Service,
	refunds refund.Service,
	credits credit.Service,
	agreements backtax.Service,
	fraudService fraud.Service,
	reviews *fraud.NATSQueue,
	merchants merchant.Repository,
	transfers transfer.Service,
	gateway *processor.StripeProcessor,
	logger *zap.Logger,
) *reconcile.Reconciler {
	return reconcile.NewReconciler(reconcile.Dependencies{
		Events:    events,
		Purchases: purchases,
		Disputes:  disputeService,
		Refunds:   refunds,
		Credits:   credits,
		Backtax:   agreements,
		Fraud:     fraudService,
		Reviews:   reviews,
		Merchants: merchants,
		Transfers: transfers,
		Gateway:   gateway,
	}, reconcile.Options{
		ProductionLike: appConfig.IsProductionLike(),
		AdminActorID:   appConfig.AdminActorID,
		MandatePolicy:  processor.NewMandatePolicy(appConfig.Stripe.MandateCountries),
		RetryAfter:     appConfig.Events.RetryAfter,
		MaxAttempts:    appConfig.Events.MaxAttempts,
		RetryBatch:     appConfig.Events.RetryBatch,
	}, logger)
}

func provideBacktaxReconciler(
	agreements backtax.Service,
	merchants merchant.Repository,
	transfers transfer.Service,
	gateway *processor.StripeProcessor,
	rates *exchange.RedisRateProvider,
	logger *zap.Logger,
) *backtax.Reconciler {
	return backtax.NewReconciler(agreements, merchants, transfers, gateway, rates, logger)
}

func provideChargeHandler(sp *processor.StripeProcessor, merchants merchant.Repository, logger *zap.Logger) handlers.ChargeHandler {
	return handlers.NewChargeHandler(sp, merchants, logger)
}

func provideLedgerHandler(
	purchases purchase.Service,
	refunds refund.Service,
	disputeService disputes.Service,
	credits credit.Service,
	logger *zap.Logger,
) handlers.LedgerHandler {
	return handlers.NewLedgerHandler(purchases, refunds, disputeService, credits, logger)
}

func provideWebhookHandler(sp *processor.StripeProcessor, events event.Service, em *processor.EventManager, logger *zap.Logger) handlers.WebhookHandler {
	return handlers.NewWebhookHandler(sp, events, em, logger)
}

func provideReviewer(sp *processor.StripeProcessor, merchants merchant.Repository, logger *zap.Logger) *fraud.Reviewer {
	return fraud.NewReviewer(sp, merchants, logger)
}

func provideServer(charge handlers.ChargeHandler, ledger handlers.LedgerHandler, webhook handlers.WebhookHandler, logger *zap.Logger) *server.Server {
	return server.NewServer(charge, ledger, webhook, logger)
}
