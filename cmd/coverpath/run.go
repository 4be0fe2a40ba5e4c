package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/coverpath/coverpath/pkg/broadcast"
	"github.com/coverpath/coverpath/pkg/channels/gochannel"
	"github.com/coverpath/coverpath/pkg/channels/kafka"
	"github.com/coverpath/coverpath/pkg/config"
	"github.com/coverpath/coverpath/pkg/eventbus"
	"github.com/coverpath/coverpath/pkg/log"
	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/persistence/file"
	"github.com/coverpath/coverpath/pkg/persistence/memory"
	"github.com/coverpath/coverpath/pkg/persistence/postgresql"
	"github.com/coverpath/coverpath/pkg/sequencer"
	"github.com/coverpath/coverpath/pkg/stream"
	"github.com/coverpath/coverpath/pkg/sweeper"
	"github.com/coverpath/coverpath/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName       = "coverpath"
	defaultStaleAfter = 10 * time.Minute
	redisCacheTTL     = 30 * time.Second
)

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("server")
	logger.InfoContext(ctx, "Initializing coverpath orchestrator")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	configService, err := newConfigService(ctx, command, logger)
	if err != nil {
		return err
	}

	persist, err := newPersistence(ctx, command.String("database-url"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := persist.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	broadcaster := broadcast.NewBroadcaster(logger)

	bus, err := newEventBus(command.String("event-bus"))
	if err != nil {
		return err
	}

	if bus != nil {
		broadcaster.WithRelay(bus)

		defer func() {
			err := bus.Close()
			if err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()
	}

	store := sequencer.NewContextStore()
	seq := sequencer.NewSequencer(configService, store, persist, broadcaster, logger)

	if command.Bool("tracing") {
		tracer, shutdown, err := telemetry.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		seq.WithTracer(tracer)

		defer func() {
			err := shutdown(context.Background())
			if err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
			}
		}()
	}

	defer seq.Close()

	sw := sweeper.New(seq, command.String("sweep-schedule"), command.Duration("stale-after"), logger)

	err = sw.Start()
	if err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	defer sw.Stop()

	hub := stream.NewHub(broadcaster, logger)

	errCh := make(chan error, 2)

	go func() {
		errCh <- hub.Start(ctx, command.Int("ws-port"))
	}()

	api := NewAPI(logger, seq, persist)

	go func() {
		errCh <- api.Start(ctx, command.Int("port"))
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")

		return nil
	case err := <-errCh:
		return err
	}
}

// newConfigService layers the settings sources: built-in demo seed,
// optional YAML file on top, optional Redis read-through cache in
// front.
func newConfigService(ctx context.Context, command *cli.Command, logger *slog.Logger) (config.Service, error) {
	var service config.Service = config.NewMemoryStore()

	err := config.SeedDemo(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to seed demo settings: %w", err)
	}

	if path := command.String("config-file"); path != "" {
		err := config.LoadFile(ctx, path, service)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}

		logger.InfoContext(ctx, "Loaded settings overlay", "path", path)
	}

	if redisURL := command.String("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		service = config.NewRedisCache(service, redis.NewClient(opts), redisCacheTTL, logger)

		logger.InfoContext(ctx, "Settings cache enabled")
	}

	return service, nil
}

func newPersistence(ctx context.Context, databaseURL string, logger *slog.Logger) (persistence.Persistence, error) {
	switch {
	case databaseURL == "":
		logger.InfoContext(ctx, "Using in-memory persistence")

		return memory.NewPersistence(), nil
	case strings.HasPrefix(databaseURL, "file://"):
		root := strings.TrimPrefix(databaseURL, "file://")

		logger.InfoContext(ctx, "Using file persistence", "root", root)

		return file.NewPersistence(root), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		logger.InfoContext(ctx, "Using postgresql persistence")

		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url: %s", databaseURL)
	}
}

func newEventBus(busType string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	switch busType {
	case "":
		return nil, nil
	case "gochannel":
		publisher, subscriber, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	case "kafka":
		publisher, subscriber, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", busType)
	}
}
