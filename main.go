package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	cfg := LoadConfig()
	logger := NewLogger(cfg)

	instanceID := uuid.New().String()
	logger.WithField("instance", instanceID).Info("starting btcprice-relay")

	identity, err := NewRelayIdentity(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to establish relay identity")
	}
	logger.WithField("pubkey", identity.PubkeyHex).Info("relay identity ready")

	store := NewEventStore(cfg.MaxStoredEvents)
	cache := NewPriceCache(cfg.CacheTTL.Milliseconds())
	fetchers := NewFetchers(cfg.FetchTimeout, cfg.FetchRetries)
	limiter := NewRateLimiter(cfg.RateIPRPS, cfg.RatePubkeyRPS, cfg.RateBurst)
	stopJanitor := limiter.StartJanitor(logger, idleSweepInterval)
	defer stopJanitor()
	stopStatsLogger := StartStatsLogger(store, cfg.MaxStoredEvents, logger, statsLogInterval)
	defer stopStatsLogger()

	hub := NewHub(store, limiter, nil, identity, cfg.MaxEventBytes, logger)
	handler := NewRequestHandler(identity, store, cache, fetchers, cfg.MinQuorum, cfg.MaxRequestMaxAge.Milliseconds(), logger, hub.Broadcast)
	hub.handler = handler

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/relay-info", relayInfoHandler(identity, cfg)).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", statsHandler(store, cfg.MaxStoredEvents)).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.ServeHTTP)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server exited unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
