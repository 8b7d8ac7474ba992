package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/layer-3/kusaidia/client"
	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/hub"
	"github.com/layer-3/kusaidia/internal/logger"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Log in with a wallet key and print notifications as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.New("kusaidia-listen", cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var wallet *client.KeyWallet
		if keyFile, _ := cmd.Flags().GetString("key"); keyFile != "" {
			if wallet, err = client.LoadKeyWallet(keyFile); err != nil {
				return fmt.Errorf("load wallet key: %w", err)
			}
		} else {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			wallet = client.NewKeyWallet(key)
		}

		c := client.New(cfg.APIBaseURL, client.WithWallet(wallet), client.WithLogger(log))
		session, err := c.Login(ctx)
		if err != nil {
			return err
		}

		if roleName, _ := cmd.Flags().GetString("role"); roleName != "" {
			role, err := core.ParseRole(roleName)
			if err != nil {
				return err
			}
			add, _ := cmd.Flags().GetBool("add-role")
			if session, err = c.EnsureRole(ctx, role, func(core.Role) bool { return add }); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", session.User.WalletAddress, session.User.UserType)

		var mu sync.Mutex
		seen := make(map[string]bool)
		h, err := c.ConnectHub(cfg.NotifyWSURL, hub.Config{
			BaseDelay:    cfg.Reconnect.BaseDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
			PollInterval: cfg.Reconnect.PollInterval,
		}, hub.WithLogger(log), hub.WithOnChange(func(s hub.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			for _, n := range s.Notifications {
				if seen[n.ID] {
					continue
				}
				seen[n.ID] = true
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", n.Type, n.Message)
			}
		}))
		if err != nil {
			return err
		}
		defer h.Close()

		<-ctx.Done()
		log.Info("stopping", slog.Int("unread", h.Snapshot().Unread))
		return c.Logout(cmd.Context())
	},
}

func init() {
	f := listenCmd.Flags()
	f.String("key", "", "hex encoded wallet private key file; a throwaway key is used when empty")
	f.String("role", "", "switch to this role after login")
	f.Bool("add-role", false, "add --role to the account if it is missing")
	rootCmd.AddCommand(listenCmd)
}
