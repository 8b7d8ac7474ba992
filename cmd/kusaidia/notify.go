package main

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/layer-3/kusaidia/adapters/events"
	"github.com/layer-3/kusaidia/internal/logger"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Publish a notification for an account onto the event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RedisURL == "" {
			return fmt.Errorf("notify needs REDIS_URL to reach running servers")
		}

		flags := cmd.Flags()
		event := events.NotificationCreatedEvent{}
		event.ID, _ = flags.GetString("id")
		event.AccountID, _ = flags.GetString("account")
		event.Type, _ = flags.GetString("type")
		event.Message, _ = flags.GetString("message")
		if url, _ := flags.GetString("action-url"); url != "" {
			event.ActionURL = &url
		}

		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		log := logger.New("kusaidia-notify", cfg.LogLevel)
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, watermill.NewSlogLogger(log))
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer pub.Close()

		topics := events.Topics{Sessions: cfg.SessionTopic, Notifications: cfg.NotificationTopic}
		if err := events.NewWatermillPublisher(pub).WithTopics(topics).PublishNotification(cmd.Context(), event); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "published")
		return nil
	},
}

func init() {
	f := notifyCmd.Flags()
	f.String("account", "", "account id to notify")
	f.String("type", "info", "notification type")
	f.String("message", "", "notification text")
	f.String("action-url", "", "optional link for the notification")
	f.String("id", "", "notification id; redelivery of the same id is stored once")
	_ = notifyCmd.MarkFlagRequired("account")
	_ = notifyCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(notifyCmd)
}
