package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"eventhub/internal/function"
	"eventhub/internal/hub"
	"eventhub/internal/hub/channel"
	"eventhub/internal/hub/consumer"
	"eventhub/internal/hub/metrics"
	"eventhub/internal/hub/producer"
	"eventhub/internal/hub/tracing"
	"eventhub/internal/hub/trigger"
	"eventhub/internal/redisstream"
)

var version = "dev"

type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	Host           string `env:"HOST" envDefault:""`
	Port           string `env:"PORT" envDefault:"8080"`
	ConnectionKey  string `env:"HUB_CONNECTION" envDefault:"hubConnection"`
	AuthLevel      string `env:"PRODUCE_AUTH_LEVEL" envDefault:"anonymous"`
	FunctionKey    string `env:"FUNCTION_KEY"`
	TriggerEnabled bool   `env:"TRIGGER_ENABLED" envDefault:"true"`

	Trigger trigger.Config
	Metrics metrics.ServerConfig
	Tracing tracing.Config
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse environment variables: %v", err)
	}

	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", cfg.LogLevel, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("eventhub stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	output := hub.Binding{
		Name:       "EventHubOutput",
		Channel:    cfg.Trigger.Channel,
		Connection: cfg.ConnectionKey,
		Route:      "produce",
		Method:     http.MethodPost,
		AuthLevel:  hub.AuthLevel(cfg.AuthLevel),
	}
	input := hub.Binding{
		Name:          "EventHubTrigger",
		Channel:       cfg.Trigger.Channel,
		Connection:    cfg.ConnectionKey,
		ConsumerGroup: cfg.Trigger.Group,
	}

	registry := metrics.NewRegistry()
	registry.SetSystemInfo(version, time.Now().Format(time.RFC3339))

	tracer, tracingCleanup, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingCleanup(shutdownCtx); err != nil {
			logger.Error("failed to cleanup tracing", zap.Error(err))
		}
	}()

	ch, err := openChannel(ctx, cfg.ConnectionKey, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := ch.Close(context.Background()); err != nil {
			logger.Error("failed to close channel", zap.Error(err))
		}
	}()

	baseHandler, err := consumer.NewHandler(logger.Named(input.Name))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	metricsHandler := consumer.NewMetricsHandler(baseHandler, registry, input.Channel)
	handler := consumer.NewTracedHandler(metricsHandler, tracer, input.Channel)

	baseProducer, err := producer.NewProducer(logger.Named(output.Name))
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	metricsPublisher := producer.NewMetricsPublisher(ch, registry)
	publisher := producer.NewTracedPublisher(metricsPublisher, tracer)

	if err := function.Register(
		output,
		function.OutputHandler(output, baseProducer, publisher, logger, cfg.FunctionKey),
		input,
		function.TriggerHandler(input, handler, logger),
	); err != nil {
		return fmt.Errorf("failed to register functions: %w", err)
	}

	trig, err := trigger.New(ch, handler, logger.Named("trigger"), registry, cfg.Trigger)
	if err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}

	serverConfig := cfg.Metrics
	if cfg.TriggerEnabled {
		serverConfig.Ready = trig.Ready
	}
	metricsServer := metrics.NewServer(serverConfig, registry, logger)

	logger.Info("eventhub starting",
		zap.String("channel", input.Channel),
		zap.String("group", input.Group()),
		zap.String("produce", fmt.Sprintf("%s %s", output.HTTPMethod(), output.Path())),
		zap.String("port", cfg.Port),
		zap.Bool("trigger", cfg.TriggerEnabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metricsServer.Start(gctx)
	})

	if cfg.TriggerEnabled {
		g.Go(func() error {
			if err := trig.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("trigger failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// the framework has no shutdown hook; it goes away with the process
		errCh := make(chan error, 1)
		go func() {
			errCh <- funcframework.StartHostPort(cfg.Host, cfg.Port)
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("functions framework stopped: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

// openChannel resolves the connection string from the setting named by key.
func openChannel(ctx context.Context, key string, logger *zap.Logger, registry *metrics.Registry) (hub.Channel, error) {
	conn, ok := os.LookupEnv(key)
	if !ok || conn == "" {
		logger.Warn("connection setting not found, using in-memory channel", zap.String("setting", key))
		conn = "memory://"
	}

	ch, err := channel.Open(ctx, conn, channel.Options{
		Logger:   logger,
		Registry: registry,
		Redis:    redisstream.DefaultOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open channel from setting %s: %w", key, err)
	}

	return ch, nil
}
