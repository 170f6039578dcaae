package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"travelpay/config"
	"travelpay/cron"
	"travelpay/database"
	bookingRepo "travelpay/database/repository/booking"
	"travelpay/handlers"
	"travelpay/middleware"
	"travelpay/routes"
	"travelpay/services/notification"
	"travelpay/services/payment"
	"travelpay/services/payment/paypal"
	"travelpay/services/payment/pesapal"
	"travelpay/services/payment/stripecheckout"
	"travelpay/services/payment/whatsapp"
	"travelpay/services/tasks"
	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	database.InitDB()
	utils.InitCache()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := utils.InitTracing(ctx, utils.TracingConfig{
		Enabled:       cfg.OtelEnabled,
		ServiceName:   cfg.OtelServiceName,
		Environment:   cfg.Env,
		CollectorAddr: cfg.OtelCollectorAddr,
		SampleRatio:   cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Fatal("main: failed to initialize tracing", zap.Error(err))
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create the Gin router.
	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(otelgin.Middleware(cfg.OtelServiceName))
	router.Use(middleware.RequestLogger(logger))

	// repositories.
	bookings := bookingRepo.NewMongoBookingRepo(database.Database(), logger)

	// payment gateways.
	httpClient := utils.NewHTTPClient(cfg.OrderTimeout + 5*time.Second)
	callbackBase := strings.TrimRight(cfg.CallbackBaseURL, "/")

	pesapalClient := pesapal.NewClient(pesapal.Config{
		ConsumerKey:    cfg.PesapalConsumerKey,
		ConsumerSecret: cfg.PesapalConsumerSecret,
		Environment:    cfg.PesapalEnvironment,
		IPNID:          cfg.PesapalIPNID,
		IPNURL:         callbackBase + "/api/payments/pesapal/ipn",
	}, httpClient, pesapal.NewRedisIPNStore(utils.GetCacheClient()), logger.Named("pesapal"))

	paypalClient := paypal.NewClient(paypal.Config{
		ClientID:     cfg.PaypalClientID,
		ClientSecret: cfg.PaypalClientSecret,
		Environment:  cfg.PaypalEnvironment,
		BrandName:    cfg.BrandName,
	}, httpClient, logger.Named("paypal"))

	stripeClient := stripecheckout.NewClient(stripecheckout.Config{
		SecretKey:         cfg.StripeSecretKey,
		WebhookSecret:     cfg.StripeWebhookSecret,
		MaxNetworkRetries: cfg.StripeMaxNetworkRetries,
	}, httpClient, logger.Named("stripe"))

	whatsappClient := whatsapp.NewClient(cfg.WhatsAppNumber, cfg.BrandName)

	registry := payment.NewRegistry(cfg.GatewayPriority, pesapalClient, paypalClient, stripeClient, whatsappClient)
	logger.Info("Payment gateways configured", zap.Strings("gateways", registry.Configured()))

	// services.
	queueClient := asynq.NewClient(utils.QueueRedisOpt())
	defer queueClient.Close()
	publisher := tasks.NewPublisher(queueClient, logger.Named("tasks"))

	tokens := payment.NewTokenCache(cfg.TokenMargin, payment.WithAuthTimeout(cfg.AuthTimeout))

	submitter := payment.NewOrderSubmitter(
		bookings,
		registry,
		tokens,
		payment.NewRedisSubmissionLock(utils.GetCacheClient()),
		publisher,
		payment.SubmitterConfig{
			CallbackBaseURL:  cfg.CallbackBaseURL,
			PublicBaseURL:    cfg.PublicBaseURL,
			SimulatePayments: cfg.SimulatePayments,
			OrderTimeout:     cfg.OrderTimeout,
			AttemptTTL:       cfg.AttemptTTL,
			LockTTL:          cfg.SubmitLockTTL,
		},
		logger.Named("submitter"),
	)

	reconciler := payment.NewCallbackReconciler(
		bookings,
		registry,
		tokens,
		publisher,
		payment.ReconcilerConfig{StatusTimeout: cfg.StatusTimeout},
		logger.Named("reconciler"),
	)

	notificationService, err := notification.NewLogNotificationService(logger.Named("notification"), cfg.BrandName)
	if err != nil {
		logger.Fatal("main: failed to initialize notification service", zap.Error(err))
	}

	worker := cron.InitPaymentWorker(
		utils.QueueRedisOpt(),
		cron.NewPaymentMux(notificationService, reconciler, logger.Named("worker")),
		logger.Named("worker"),
	)

	utils.StartHealthMonitor(ctx,
		[]*redis.Client{utils.GetCacheClient(), utils.QueueClient},
		database.MongoClient,
		registry.Configured,
	)

	var webhooks handlers.WebhookParser
	if stripeClient.IsConfigured() && cfg.StripeWebhookSecret != "" {
		webhooks = stripeClient
	}

	paymentHandler := handlers.NewPaymentHandler(submitter, reconciler, webhooks, cfg.PublicBaseURL, logger.Named("http"))
	adminHandler := handlers.NewAdminHandler(bookings, reconciler, publisher, logger.Named("admin"))

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlers.NewHandlerBundle(paymentHandler, adminHandler), routes.Options{
		AllowOrigins:      []string{strings.TrimRight(cfg.PublicBaseURL, "/")},
		MaxRequestsPerMin: cfg.MaxRequestsPerMin,
		Gateways:          []string{pesapal.Name, paypal.Name, stripecheckout.Name, whatsapp.Name},
	})

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	worker.Shutdown()
	if err := database.MongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Warn("main: mongo disconnect failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("main: tracing shutdown failed", zap.Error(err))
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
