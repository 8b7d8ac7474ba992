package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/kusaidia/adapters/events"
	"github.com/layer-3/kusaidia/adapters/postgres"
	"github.com/layer-3/kusaidia/adapters/store"
	"github.com/layer-3/kusaidia/adapters/tokenizer"
	"github.com/layer-3/kusaidia/adapters/verifier"
	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/config"
	"github.com/layer-3/kusaidia/internal/logger"
	"github.com/layer-3/kusaidia/ports"
	"github.com/layer-3/kusaidia/service"
	httptransport "github.com/layer-3/kusaidia/transport/http"
	"github.com/layer-3/kusaidia/transport/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auth API and the notification channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.New("kusaidia", cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// backends are the stores and the event bus chosen by configuration
type backends struct {
	nonces        ports.NonceStore
	revocations   ports.RevocationStore
	accounts      ports.AccountStore
	notifications ports.NotificationStore
	publisher     message.Publisher
	subscriber    message.Subscriber
	closers       []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}
	wmLogger := watermill.NewSlogLogger(log)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		b.nonces = store.NewRedisNonceStore(rdb, cfg.NonceTTL)
		b.revocations = store.NewRedisStore(rdb)

		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, wmLogger)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("create redis publisher: %w", err)
		}
		// No consumer group: every instance sees every event
		sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: rdb}, wmLogger)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("create redis subscriber: %w", err)
		}
		b.publisher, b.subscriber = pub, sub
		b.closers = append(b.closers, func() { _ = sub.Close() }, func() { _ = pub.Close() })
		log.Info("using redis stores", slog.String("addr", opts.Addr))
	} else {
		nonces := store.NewMemoryNonceStore(cfg.NonceTTL)
		revocations := store.NewMemoryStore()
		if cfg.NonceSweepInterval > 0 {
			go nonces.RunSweeper(ctx, cfg.NonceSweepInterval, log)
			go revocations.RunSweeper(ctx, cfg.NonceSweepInterval, log)
		}
		b.nonces, b.revocations = nonces, revocations

		bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		b.publisher, b.subscriber = bus, bus
		b.closers = append(b.closers, func() { _ = bus.Close() })
		log.Warn("REDIS_URL not set, using in-memory stores and event bus")
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			b.close()
			return nil, err
		}
		b.accounts = postgres.NewAccountRepository(pool)
		b.notifications = postgres.NewNotificationRepository(pool)
	} else {
		b.accounts = store.NewMemoryAccountStore()
		b.notifications = store.NewMemoryNotificationStore()
		log.Warn("DATABASE_URL not set, accounts and notifications are kept in memory")
	}

	return b, nil
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	signKey, ephemeral, err := loadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		return err
	}
	if ephemeral {
		log.Warn("JWT_SIGNING_KEY_FILE not set, tokens will not survive a restart")
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	topics := events.Topics{Sessions: cfg.SessionTopic, Notifications: cfg.NotificationTopic}
	registry := ws.NewRegistry(log)
	notifications := service.NewNotificationService(b.notifications, registry, log)
	sessions := service.NewSessionIssuer(tokenizer.NewJWTTokenizer(signKey), b.revocations, cfg.AccessTTL, cfg.RefreshTTL)
	auth := service.NewAuthService(
		b.nonces,
		verifier.NewEthVerifier(),
		sessions,
		service.NewRoleManager(b.accounts),
		events.NewWatermillPublisher(b.publisher).WithTopics(topics),
		cfg.Role(),
		log,
	)

	eventRouter, err := events.NewRouter(b.subscriber, events.Handlers{
		Topics: topics,
		OnNotification: func(ctx context.Context, e events.NotificationCreatedEvent) error {
			_, err := notifications.Deliver(ctx, service.NewNotification{
				ID:        e.ID,
				AccountID: e.AccountID,
				Type:      e.Type,
				Message:   e.Message,
				ActionURL: e.ActionURL,
			})
			if errors.Is(err, core.ErrInvalidMessage) || errors.Is(err, core.ErrAccountNotFound) {
				log.Warn("dropping undeliverable notification", slog.String("id", e.ID), slog.String("error", err.Error()))
				return nil
			}
			return err
		},
		OnSessionRevoked: func(ctx context.Context, e events.SessionRevokedEvent) error {
			if n := registry.DisconnectSession(e.RefreshID); n > 0 {
				log.Info("closed channels of revoked session",
					slog.String("account_id", e.AccountID),
					slog.String("reason", string(e.Reason)),
					slog.Int("connections", n),
				)
			}
			return nil
		},
	}, log)
	if err != nil {
		return err
	}

	channel := ws.NewHandler(auth, notifications, registry, nil, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.SetupRouter(auth, notifications, channel, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventRouter.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
