package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rx3lixir/ridepool/internal/attachment"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/internal/config"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/realtime"
	"github.com/rx3lixir/ridepool/internal/ride"
	"github.com/rx3lixir/ridepool/internal/server"
	"github.com/rx3lixir/ridepool/internal/storage/memory"
	"github.com/rx3lixir/ridepool/internal/storage/postgres"
	"github.com/rx3lixir/ridepool/internal/storage/s3"
	"github.com/rx3lixir/ridepool/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ridepool: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the persistence backends picked by the driver setting
type stores struct {
	rides         ride.Store
	conversations conversation.Store
	notifications notification.Store
	close         func()
}

func run(args []string) error {
	// Initializing and validating config
	cm, err := config.NewConfigManager(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initializing logger
	log, err := logger.New(logger.Config{
		Env:       c.GeneralParams.Env,
		Level:     c.GeneralParams.LogLevel,
		AddSource: c.GeneralParams.Env == "dev",
	})
	if err != nil {
		return err
	}

	log.Info("config loaded",
		"env", c.GeneralParams.Env,
		"http_server_address", c.HttpServerParams.GetAddress(),
		"db_driver", c.MainDBParams.Driver,
		"broker", c.BrokerParams.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, c, log)
	if err != nil {
		return err
	}
	defer st.close()

	// Attachments are optional, the directory rejects uploads without them
	var blobs conversation.BlobStore
	if c.S3Params.Enabled {
		client, err := s3.NewClient(c.S3Params.Endpoint, c.S3Params.AccessKeyID, c.S3Params.SecretAccessKey, c.S3Params.UseSSL)
		if err != nil {
			return err
		}
		if err := s3.EnsureBucket(ctx, client, c.S3Params.BucketName); err != nil {
			return err
		}
		blobs = attachment.NewMinIOStore(client, c.S3Params.BucketName, time.Hour)
		log.Info("attachment storage ready", "bucket", c.S3Params.BucketName)
	}

	// Realtime delivery, fanned out through Redis when several instances run
	wsManager := realtime.NewManager(log.With("realtime"))
	var bus realtime.Bus = wsManager
	var redisBus *realtime.RedisBus
	if c.RedisParams.Enabled {
		rc := redis.NewClient(&redis.Options{
			Addr:     c.RedisParams.Addr,
			Password: c.RedisParams.Password,
			DB:       c.RedisParams.DB,
		})
		defer rc.Close()

		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisBus = realtime.NewRedisBus(rc, c.RedisParams.Channel, wsManager, log.With("redis_bus"))
		bus = redisBus
	}

	// Notification channels
	deliverers := []notification.Deliverer{
		notification.NewInboxDeliverer(st.notifications),
		notification.NewPushDeliverer(bus),
	}
	var brokerCloser io.Closer
	switch c.BrokerParams.Kind {
	case "amqp":
		pub, err := notification.NewAMQPPublisher(c.BrokerParams.URL, c.BrokerParams.Exchange, log.With("amqp"))
		if err != nil {
			return err
		}
		deliverers = append(deliverers, pub)
		brokerCloser = pub
	case "kafka":
		pub := notification.NewKafkaPublisher(c.BrokerParams.Brokers, c.BrokerParams.Topic)
		deliverers = append(deliverers, pub)
		brokerCloser = pub
	}

	dispatcher := notification.NewDispatcher(
		log.With("notifications"),
		c.RideParams.NotificationWorkers,
		c.RideParams.NotificationQueue,
		deliverers...,
	)
	dispatcher.Start()

	directory := conversation.NewDirectory(st.conversations, bus, blobs, log.With("conversations"))
	coordinator := ride.NewCoordinator(st.rides, directory, dispatcher, log.With("rides"), ride.Options{
		MaxPassengers: c.RideParams.MaxPassengers,
		WindowDays:    c.RideParams.DefaultWindowDays,
	})

	authService := auth.NewService(c.GeneralParams.SecretKey, 0)
	dbTimeout := c.HttpServerParams.DBTimeout

	router := server.NewRouter(server.RouterConfig{
		RideHandler:         ride.NewHandler(coordinator, log.Logger, dbTimeout),
		ConversationHandler: conversation.NewHandler(directory, log.Logger, dbTimeout),
		NotificationHandler: notification.NewHandler(st.notifications, log.Logger, dbTimeout),
		RealtimeHandler:     realtime.NewHandler(wsManager, authService, log.Logger),
		AuthService:         authService,
		Log:                 log.Logger,
	})

	httpServer := server.New(c.HttpServerParams.GetAddress(), router, server.Timeouts{
		Read:  c.HttpServerParams.ReadTimeout,
		Write: c.HttpServerParams.WriteTimeout,
		Idle:  c.HttpServerParams.IdleTimeout,
	}, log.Logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)

	if redisBus != nil {
		g.Go(func() error { return redisBus.Run(gctx) })
	}

	// Block until a signal arrives or a component fails, then unwind in order
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "cause", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		wsManager.Shutdown()

		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn("notification queue not drained", "error", err)
		}
		if brokerCloser != nil {
			if err := brokerCloser.Close(); err != nil {
				log.Warn("failed to close broker publisher", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("stopped")
	return nil
}

func openStores(ctx context.Context, c *config.Config, log *logger.Logger) (*stores, error) {
	lockTimeout := c.MainDBParams.LockTimeout()

	if c.MainDBParams.Driver == "memory" {
		db := memory.New(lockTimeout)
		log.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			rides:         db.Rides(),
			conversations: db.Conversations(),
			notifications: db.Notifications(),
			close:         func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, c.MainDBParams.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if c.MainDBParams.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	log.Info("database connection established",
		"host", c.MainDBParams.Host,
		"db", c.MainDBParams.Name)

	return &stores{
		rides:         ride.NewPostgresStore(pool, lockTimeout),
		conversations: conversation.NewPostgresStore(pool),
		notifications: notification.NewPostgresStore(pool),
		close:         pool.Close,
	}, nil
}
