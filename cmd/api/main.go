package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/goodfood/internal/api"
	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/config"
	"github.com/joao-fontenele/goodfood/internal/email"
	"github.com/joao-fontenele/goodfood/internal/feedback"
	"github.com/joao-fontenele/goodfood/internal/menu"
	"github.com/joao-fontenele/goodfood/internal/messaging"
	"github.com/joao-fontenele/goodfood/internal/notify"
	"github.com/joao-fontenele/goodfood/internal/orders"
	"github.com/joao-fontenele/goodfood/internal/telemetry"
	"github.com/joao-fontenele/goodfood/internal/uploads"
	"github.com/joao-fontenele/goodfood/internal/users"
)

const serviceName = "goodfood-api"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.Require(
		"POSTGRES_URL", cfg.Database.URL,
		"JWT_SECRET", cfg.Auth.JWTSecret,
		"EMAIL_SERVICE_URL", cfg.Email.ServiceURL,
	); err != nil {
		logger.Error("missing configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	images, err := uploads.NewStore(cfg.Uploads.Dir, cfg.Uploads.MaxImageBytes)
	if err != nil {
		logger.Error("failed to prepare uploads directory", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	mailer := email.NewClient(cfg.Email.ServiceURL, cfg.Email.From, httpClient, logger)

	var sink notify.Sink = notify.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		sink = notify.NewKafkaSink(producer)
	} else {
		logger.Warn("KAFKA_BROKERS not set, seller notifications are disabled")
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to configure tokens", "error", err)
		os.Exit(1)
	}

	userSvc := users.NewService(users.NewUserRepository(db), tokens, mailer,
		users.Links{App: cfg.Email.AppBaseURL, API: cfg.Email.APIBaseURL}, logger,
		users.WithTTLs(cfg.Auth.PendingTTL, cfg.Auth.PasswordResetTTL, cfg.Auth.VerificationTTL),
	)
	menuRepo := menu.NewMenuRepository(db)
	orderSvc := orders.NewService(orders.NewOrderRepository(db), menuRepo, sink, logger,
		orders.WithCancelWindow(cfg.Orders.CancelWindow),
	)
	feedbackSvc := feedback.NewService(feedback.NewFeedbackRepository(db), orderSvc, logger)

	gate := auth.NewGate(tokens, userSvc, logger)

	purge := cron.New()
	if _, err := purge.AddFunc(cfg.Auth.PurgeSchedule, func() {
		n, err := userSvc.PurgeExpiredPending(context.Background())
		if err != nil {
			logger.Error("failed to purge pending registrations", "error", err)
			return
		}
		if n > 0 {
			logger.Info("purged pending registrations", "count", n)
		}
	}); err != nil {
		logger.Error("invalid purge schedule", "schedule", cfg.Auth.PurgeSchedule, "error", err)
		os.Exit(1)
	}
	purge.Start()

	router := api.NewRouter(api.Options{
		Gate:    gate,
		Uploads: images.Handler(),
		Metrics: metricsHandler,
		Logger:  logger,
	},
		users.NewHandler(userSvc, images, logger),
		menu.NewHandler(menuRepo, images, logger),
		orders.NewHandler(orderSvc, logger),
		feedback.NewHandler(feedbackSvc, images, logger),
		api.NewContactHandler(mailer, cfg.Email.SupportAddress, logger),
	)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: otelhttp.NewHandler(router, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "HTTP " + r.Method
			}),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting api service", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	<-purge.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
