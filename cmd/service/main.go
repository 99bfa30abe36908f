package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tash-comp/rain-app/internal/cache"
	"github.com/tash-comp/rain-app/internal/client"
	"github.com/tash-comp/rain-app/internal/config"
	httphandler "github.com/tash-comp/rain-app/internal/http"
	"github.com/tash-comp/rain-app/internal/location"
	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/monitor"
	"github.com/tash-comp/rain-app/internal/notify"
	"github.com/tash-comp/rain-app/internal/observability"
	"github.com/tash-comp/rain-app/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.String("env", cfg.Env))

	source, tracker, err := buildLocationSource(cfg.Location)
	if err != nil {
		logger.Fatal("location source", zap.Error(err))
	}

	rainClient, err := client.NewRainClient(cfg.RainAPI.URL, cfg.RainAPI.Timeout)
	if err != nil {
		logger.Fatal("rain client", zap.Error(err))
	}
	mon := monitor.New(source, rainClient, cfg.Monitor.Interval, logger)

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	sinks, err := buildSinks(appCtx, cfg.Notify, logger)
	if err != nil {
		logger.Fatal("notification sinks", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.Notify.Timeout, logger)
	events, unsubscribe := mon.Subscribe(cfg.Monitor.EventBuffer)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(appCtx, events)
	}()

	healthConfig := &httphandler.HealthConfig{StartTime: time.Now()}
	var rainProvider httphandler.RainProvider
	var closeCache func() error
	if cfg.Provider.Enabled {
		c, ping, closer, err := buildCache(cfg.Cache)
		if err != nil {
			logger.Fatal("cache", zap.Error(err))
		}
		healthConfig.CachePing = ping
		closeCache = closer
		logger.Info("cache backend", zap.String("backend", cfg.Cache.Backend))

		upstream, err := provider.NewOpenMeteoClient(cfg.Provider.URL, cfg.Provider.Timeout, provider.BreakerSettings{
			FailureThreshold: cfg.Provider.BreakerFailures,
			OpenTimeout:      cfg.Provider.BreakerOpenTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("open-meteo client", zap.Error(err))
		}
		rainProvider = provider.NewService(upstream, c, cfg.Cache.Backend, cfg.Provider.CacheTTL, logger)
	}

	var locationReceiver httphandler.LocationReceiver
	if tracker != nil {
		locationReceiver = tracker
	}
	handler := httphandler.NewHandler(mon, locationReceiver, rainProvider, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	if cfg.Monitor.AutoStart {
		if err := mon.Start(); err != nil {
			logger.Fatal("monitor start", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := mon.Shutdown(shutdownCtx); err != nil {
		logger.Warn("monitor cycles still running at shutdown", zap.Error(err))
	}
	unsubscribe()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		logger.Warn("alert delivery did not finish before shutdown deadline")
	}
	cancelApp()

	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if closeCache != nil {
		if err := closeCache(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// buildLocationSource returns the monitor's location source. tracker is non-nil only for the
// push-fed source, which the HTTP layer feeds.
func buildLocationSource(cfg config.LocationConfig) (location.Source, *location.Tracker, error) {
	switch cfg.Source {
	case "static":
		s, err := location.NewStatic(models.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		t := location.NewTracker(cfg.MaxAge)
		return t, t, nil
	}
}

// buildCache returns the provider cache plus optional ping and close funcs for remote backends.
func buildCache(cfg config.CacheConfig) (cache.Cache, func() error, func() error, error) {
	switch cfg.Backend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.Timeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, nil, err
		}
		return mc, mc.Ping, mc.Close, nil
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Timeout)
		return rc, rc.Ping, rc.Close, nil
	default:
		return cache.NewInMemoryCache(), nil, nil, nil
	}
}

// buildSinks returns the configured alert sinks. The SQS client uses the default AWS
// credential chain.
func buildSinks(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.Log {
		sinks = append(sinks, notify.NewLogSink(logger))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.Timeout))
	}
	if cfg.SQSQueueURL != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sinks = append(sinks, notify.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL))
	}
	if len(sinks) == 0 {
		logger.Warn("no notification sinks configured; rain alerts will only be counted")
	}
	return sinks, nil
}
