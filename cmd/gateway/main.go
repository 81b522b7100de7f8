// Command gateway runs the translation request gateway: it loads the
// workspace/domain/language configuration, connects to the message broker,
// and serves the v1 and v2 HTTP APIs until interrupted.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/tartunlp/translation-gateway/internal/broker"
	"github.com/tartunlp/translation-gateway/internal/config"
	"github.com/tartunlp/translation-gateway/internal/correction"
	"github.com/tartunlp/translation-gateway/internal/httpapi"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	snapshot, err := config.LoadSnapshot(settings.ConfigPath)
	if err != nil {
		return err
	}
	reg, err := config.BuildRegistry(snapshot)
	if err != nil {
		return err
	}

	client := broker.NewClient(broker.Config{
		URL:            settings.MQ.URL(),
		Exchange:       settings.MQ.Exchange,
		ConnectionName: settings.MQ.ConnectionName,
		Heartbeat:      config.DefaultHeartbeat,
		CallTimeout:    settings.MQ.Timeout,
	}, logger, nil)

	// A gateway without a working broker cannot serve traffic; report and
	// exit instead of retrying silently.
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	sink, err := correction.NewFileSink(
		settings.Corrections.Path,
		settings.Corrections.MaxRetries,
		settings.Corrections.Backoff,
		logger)
	if err != nil {
		return err
	}

	var redisClient redis.Cmdable
	if addr := settings.RateLimit.RedisAddr; addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	limiter := httpapi.NewKeyLimiter(
		settings.RateLimit.PerSecond,
		settings.RateLimit.Burst,
		redisClient,
		logger)

	server := httpapi.NewServer(httpapi.Config{
		Validator:   translate.NewValidator(reg, settings.DefaultDomain, settings.MaxInputLength),
		Registry:    reg,
		Broker:      client,
		Sink:        sink,
		Limiter:     limiter,
		Logger:      logger,
		Exchange:    settings.MQ.Exchange,
		CallTimeout: settings.MQ.Timeout,
	})

	httpServer := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", settings.ListenAddr, "version", settings.Version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}
