package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"eddisonso.com/edd-blog/internal/config"
	"eddisonso.com/edd-blog/internal/httpx"
	"eddisonso.com/edd-blog/internal/logging"
	"eddisonso.com/edd-blog/internal/users/api"
	"eddisonso.com/edd-blog/internal/users/db"
	"eddisonso.com/edd-blog/pkg/events"
)

const shutdownGrace = 10 * time.Second

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.LoadUsers()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	slog.SetDefault(logging.New(cfg.LogLevel))

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	// Broker is optional; without it users are still created, just not replicated.
	var publisher api.EventPublisher
	if cfg.BrokerURL != "" {
		p, err := events.NewPublisher(events.PublisherConfig{
			URL:    cfg.BrokerURL,
			Source: "user-service",
		})
		if err != nil {
			log.Fatalf("invalid BROKER_URL: %v", err)
		}
		defer p.Close()
		publisher = p
		slog.Info("publishing user events", "broker", logging.RedactURL(cfg.BrokerURL), "queue", events.QueueName)
	} else {
		slog.Info("BROKER_URL not set, events will not be published")
	}

	handler := api.NewHandler(api.Config{
		Store:         database,
		Publisher:     publisher,
		JWTSecret:     []byte(cfg.JWTSecret),
		TokenTTL:      cfg.TokenTTL,
		ServiceAPIKey: cfg.ServiceAPIKey,

		TrustedProxies: cfg.TrustedProxies,
	})
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.CORS(cfg.CORSOrigins, httpx.LogRequests(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting user service", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down user service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
