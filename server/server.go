package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/handlers"
)

type Server struct {
	echo    *echo.Echo
	Charge  handlers.ChargeHandler
	Ledger  handlers.LedgerHandler
	Webhook handlers.WebhookHandler
	logger  *zap.Logger

	// shutdown hooks run after the http server has stopped accepting requests.
	shutdown []func()
}

func NewServer(
	Charge handlers.ChargeHandler,
	Ledger handlers.LedgerHandler,
	Webhook handlers.WebhookHandler,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	return &Server{
		echo:    e,
		Charge:  Charge,
		Ledger:  Ledger,
		Webhook: Webhook,
		logger:  logger,
	}
}

// OnShutdown registers fn to run once Run has drained the http server.
func (s *Server) OnShutdown(fn func()) {
	s.shutdown = append(s.shutdown, fn)
}

// Start registers middlewares and routes and listens on address.
func (s *Server) Start(address string) error {
	s.registerMiddlewares()
	s.registerRoutes()
	return s.echo.Start(address)
}

// Run starts the server in a goroutine and blocks until SIGINT or SIGTERM, then
// shuts down with a 5 second grace period.
func (s *Server) Run(address string) error {

	go func() {
		if err := s.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	for _, fn := range s.shutdown {
		fn()
	}
	return err
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {

	s.echo.POST("/charges", s.Charge.CreateCharge)
	s.echo.GET("/charges", s.Charge.SearchCharge)
	s.echo.GET("/charges/:id", s.Charge.GetCharge)
	s.echo.POST("/charges/:id/refunds", s.Charge.Refund)
	s.echo.GET("/charges/:id/refunds", s.Ledger.ListChargeRefunds)

	s.echo.GET("/purchases/:id", s.Ledger.GetPurchase)
	s.echo.GET("/refunds/:id", s.Ledger.GetRefund)
	s.echo.GET("/disputes/:id", s.Ledger.GetDispute)

	s.echo.POST("/setup_intents", s.Charge.SetupFutureCharges)

	merchants := s.echo.Group("/merchants/:merchant_id")
	merchants.POST("/payment_intents/:id/confirm", s.Charge.ConfirmPaymentIntent)
	merchants.POST("/payment_intents/:id/cancel", s.Charge.CancelPaymentIntent)
	merchants.POST("/setup_intents/:id/cancel", s.Charge.CancelSetupIntent)
	merchants.GET("/credits", s.Ledger.ListMerchantCredits)

	s.echo.POST("/webhook/stripe", s.Webhook.HandleStripeWebhook)
}
