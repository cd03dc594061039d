package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sapliy/pm-portal/internal/mockapi"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
	"github.com/sapliy/pm-portal/pkg/observability"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	secret := os.Getenv("API_KEY_SECRET")
	if secret == "" {
		secret = "mock-backend-secret"
	}

	logger := observability.NewLogger("mock-backend")

	shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName:    "mock-backend",
		ServiceVersion: "0.1.0",
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:    os.Getenv("ENVIRONMENT"),
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())

	server, keys, err := mockapi.NewSeeded(&bcryptutil.BcryptUtilsImpl{}, secret, logger)
	if err != nil {
		logger.Error("Failed to seed mock backend", "error", err)
		os.Exit(1)
	}

	logger.Info("Mock backend starting", "port", port)
	logger.Info("Demo account", "email", mockapi.DemoEmail, "password", mockapi.DemoPassword)
	for app, key := range keys {
		logger.Info("Ingest key", "application", app, "key", key)
	}
	logger.Info("Push a notification", "example",
		fmt.Sprintf(`curl -X POST -H "X-API-Key: <key>" -d '{"title":"Release"}' http://localhost:%s/api/ingest`, port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(server.Handler(), "mock-backend-request"),
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down mock backend...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Mock backend stopped")
}
