//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	processor "goflare.io/chargeprocessor"
	"goflare.io/chargeprocessor/backtax"
	"goflare.io/chargeprocessor/config"
	"goflare.io/chargeprocessor/credit"
	"goflare.io/chargeprocessor/disputes"
	"goflare.io/chargeprocessor/driver"
	"goflare.io/chargeprocessor/event"
	"goflare.io/chargeprocessor/exchange"
	"goflare.io/chargeprocessor/fraud"
	"goflare.io/chargeprocessor/merchant"
	"goflare.io/chargeprocessor/purchase"
	"goflare.io/chargeprocessor/refund"
	"goflare.io/chargeprocessor/transfer"
)

func InitializeApplication() (*application, error) {

	wire.Build(
		config.ProvideApplicationConfig,
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideRedis,
		config.ProvideNATS,
		config.ProvideEmber,
		config.ProvideIgnite,
		driver.NewTransactionManager,
		event.NewRepository,
		event.NewService,
		purchase.NewRepository,
		purchase.NewService,
		merchant.NewRepository,
		disputes.NewRepository,
		disputes.NewService,
		refund.NewRepository,
		refund.NewService,
		credit.NewRepository,
		credit.NewService,
		transfer.NewRepository,
		transfer.NewService,
		fraud.NewRepository,
		fraud.NewService,
		fraud.NewNATSQueue,
		backtax.NewRepository,
		backtax.NewService,
		exchange.NewRedisRateProvider,
		processor.NewStripeProcessor,
		processor.NewEventManager,
		provideDispatcher,
		provideChargeReconciler,
		provideBacktaxReconciler,
		provideReviewer,
		provideChargeHandler,
		provideLedgerHandler,
		provideWebhookHandler,
		provideServer,
		newApplication,
	)

	return &application{}, nil
}
