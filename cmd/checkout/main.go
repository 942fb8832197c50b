package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brpix/checkout/internal/cache"
	"github.com/brpix/checkout/internal/checkout"
	"github.com/brpix/checkout/internal/messaging"
	"github.com/brpix/checkout/internal/orders"
	"github.com/brpix/checkout/internal/processor"
	"github.com/brpix/checkout/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := telemetry.NewLogger()
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "checkout", "0.1.0", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	checkoutMetrics, err := telemetry.NewCheckoutMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "payment.confirmed")
		defer func() { _ = producer.Close() }()
	}

	var statusCache cache.Cache
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		statusCache = cache.NewRedisCache(redisAddr, "checkout")
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	// Credentials may be absent; the client then reports ErrNotConfigured
	// per call instead of the service refusing to start.
	client := processor.NewClient(processor.Config{
		ClientID:     os.Getenv("MISTIC_CLIENT_ID"),
		ClientSecret: os.Getenv("MISTIC_CLIENT_SECRET"),
		BaseURL:      os.Getenv("MISTIC_BASE_URL"),
	}, httpClient)

	repo := orders.NewOrderRepository(db)
	service := checkout.NewService(repo, client, statusCache, logger)
	handler := checkout.NewHandler(service, producer, checkoutMetrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(handler.HandleSubmit))
	mux.HandleFunc("GET /checkout", telemetry.WithHTTPRoute(handler.HandleStatus))
	mux.HandleFunc("POST /webhooks/payment-confirmation", telemetry.WithHTTPRoute(handler.HandleWebhook))
	mux.HandleFunc("GET /webhooks/payment-confirmation", telemetry.WithHTTPRoute(handler.HandleWebhookInfo))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "checkout",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting checkout service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
