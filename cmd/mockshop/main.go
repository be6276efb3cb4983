package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/erauner12/urshop-admin/internal/logging"
	"github.com/erauner12/urshop-admin/internal/mockshop"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadMock()
	logging.Setup("mockshop", cfg.LogLevel, cfg.Env == "dev")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	shop, err := mockshop.New(mockshop.Config{
		JWTSecret:  []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create mock backend")
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      shop.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("email", mockshop.DefaultAdminEmail).
			Dur("accessTTL", cfg.AccessTTL).
			Msg("starting mock backend")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// SIGHUP expires every outstanding access token, which makes the next
	// client call go through the refresh path.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			shop.ExpireAccessTokens()
			continue
		}
		break
	}

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
