package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helpdeskpro/helpdesk/internal/config"
	internalhttp "github.com/helpdeskpro/helpdesk/internal/http"
	"github.com/helpdeskpro/helpdesk/internal/monitor"
	"github.com/helpdeskpro/helpdesk/internal/obs"
	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("web encerrado com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	supa, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseKey})
	if err != nil {
		return fmt.Errorf("supabase: %w", err)
	}

	obs.Init()

	mon := monitor.NewService(
		supa,
		cfg.Monitoring,
		log.With().Str("component", "monitor").Logger(),
		monitor.NewSlackNotifier(cfg.Monitoring.SlackWebhookURL),
	)
	mon.Start(ctx)
	defer mon.Stop()

	handler, err := internalhttp.NewRouter(cfg, redisClient, supa, mon)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("site_url", cfg.SiteURL).Msgf("HelpDesk ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
