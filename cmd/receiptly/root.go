package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/receiptly/receiptly-go"
	"github.com/receiptly/receiptly-go/internal/directory"
	"github.com/receiptly/receiptly-go/internal/observability"
	"github.com/receiptly/receiptly-go/pkg/config"
	obs "github.com/receiptly/receiptly-go/pkg/observability"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile string
	serverURL  string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:     "receiptly",
	Short:   "Chat with the Receiptly assistant and manage sessions and receipts",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			userID = os.Getenv("RECEIPTLY_USER")
		}
		if userID == "" {
			return fmt.Errorf("a user identity is required (--user or RECEIPTLY_USER)")
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", getEnv("RECEIPTLY_CONFIG", ""), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User identity")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.APIBaseURL = serverURL
	}
	return cfg, nil
}

// newClient builds a client from the loaded configuration, starting the
// observability server and tracing when configured.
func newClient(cfg *config.Config, opts ...receiptly.Option) (*receiptly.Client, func(), error) {
	obs.InitMetrics()

	if err := observability.InitFromEnv(); err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	var cache directory.Cache
	if cfg.Cache.Enabled {
		ttl, err := cfg.CacheTTL()
		if err != nil {
			return nil, nil, err
		}
		rc, err := directory.NewRedisCache(directory.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      ttl,
		})
		if err != nil {
			log.Printf("listing cache disabled: %v", err)
		} else {
			cache = rc
		}
	}

	client, err := receiptly.New(cfg, userID, cache, opts...)
	if err != nil {
		return nil, nil, err
	}

	var obsServer *obs.Server
	if cfg.ObservabilityPort > 0 {
		hc := obs.InitHealthChecker()
		hc.RegisterCheck(obs.PingCheck())
		hc.RegisterCheck(obs.BackendCheck(client.API().Ping))
		obsServer = obs.NewServer(cfg.ObservabilityPort)
		go func() {
			if err := obsServer.Start(); err != nil {
				log.Printf("observability server: %v", err)
			}
		}()
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(); err != nil {
			log.Printf("close: %v", err)
		}
		if obsServer != nil {
			_ = obsServer.Shutdown(ctx)
		}
		_ = observability.Shutdown(ctx)
	}
	return client, cleanup, nil
}
