package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/roomplus/roomplus/pkg/api"
	"github.com/roomplus/roomplus/pkg/auth"
	"github.com/roomplus/roomplus/pkg/config"
	"github.com/roomplus/roomplus/pkg/hub"
	"github.com/roomplus/roomplus/pkg/journal"
	"github.com/roomplus/roomplus/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var jrnl journal.Journal
	if len(cfg.KafkaBrokers) > 0 {
		k := journal.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer k.Close()
		jrnl = k
		log.Info("broadcast journal enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var mirror *redis.Client
	if cfg.RedisAddr != "" {
		mirror = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer mirror.Close()
		log.Info("presence mirror enabled", "addr", cfg.RedisAddr)
	}

	h := hub.New(hub.Options{
		Store:           st,
		Log:             log,
		Journal:         jrnl,
		Mirror:          mirror,
		HistoryPageSize: cfg.HistoryPageSize,
	})

	restAPI := &api.API{
		Store:     st,
		Hub:       h,
		Auth:      auth.New(cfg.JWTSecret, cfg.TokenTTL),
		Log:       log,
		UploadDir: cfg.UploadDir,
	}

	mux := http.NewServeMux()
	restAPI.Register(mux)
	mux.HandleFunc("/ws", h.ServeWS)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.CORS(cfg.ClientURL, mux),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr(), "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	h.Shutdown()
	return nil
}

func openStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "scylla":
		return store.OpenScylla(cfg.ScyllaHosts, cfg.ScyllaKeyspace, log)
	case "badger", "":
		return store.OpenBadger(cfg.BadgerPath, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
