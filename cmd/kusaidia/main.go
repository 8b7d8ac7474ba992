package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/layer-3/kusaidia/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "kusaidia",
	Short:         "Wallet authentication and notification service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load variables from this .env file")
}

func loadConfig() (*config.Config, error) {
	if envFile == "" {
		return config.Load()
	}
	return config.Load(envFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
