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
	"eddisonso.com/edd-blog/internal/posts/api"
	"eddisonso.com/edd-blog/internal/posts/db"
	postevents "eddisonso.com/edd-blog/internal/posts/events"
	"eddisonso.com/edd-blog/pkg/events"
)

const (
	shutdownGrace = 10 * time.Second
	sweepInterval = time.Hour
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.LoadPosts()
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed the cache before consuming so the first page render has authors.
	if err := postevents.SyncUsersFromUserService(ctx, nil, database, cfg.UserServiceURL, cfg.ServiceAPIKey); err != nil {
		slog.Error("initial user sync failed", "error", err)
	}

	consumer, err := events.NewConsumer(events.ConsumerConfig{
		URL:          cfg.BrokerURL,
		ConsumerName: cfg.ConsumerName,
		Handler:      postevents.NewHandler(database),
	})
	if err != nil {
		log.Fatalf("invalid consumer config: %v", err)
	}
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("failed to start event consumer: %v", err)
	}
	slog.Info("consuming user events", "broker", logging.RedactURL(cfg.BrokerURL), "consumer", cfg.ConsumerName)

	handler := api.NewHandler(api.Config{
		Store:     database,
		JWTSecret: []byte(cfg.JWTSecret),
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.CORS(cfg.CORSOrigins, httpx.LogRequests(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting post service", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepTombstones(ctx, database, cfg.TombstoneTTL)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down post service")
		consumer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// sweepTombstones drops deleted users once no redelivery can still reference
// them.
func sweepTombstones(ctx context.Context, database *db.DB, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := database.PurgeTombstones(ctx, ttl)
			if err != nil {
				slog.Error("failed to purge tombstones", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged user tombstones", "count", n)
			}
		}
	}
}
