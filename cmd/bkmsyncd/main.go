package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/bkmsync/pkg/api"
	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/kernel"
	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bkmsyncd",
	Short:   "bkmsyncd runs the bookmark sync kernel daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"bkmsyncd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("namespace", "", "bookmark namespace this daemon serves (required)")
	rootCmd.PersistentFlags().String("base-url", "", "origin server base URL for sync delivery and the event stream")
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (overlaid on top of defaults)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "directory for the bbolt store; empty uses an in-memory store")
	rootCmd.PersistentFlags().String("listen", ":8787", "address the API server listens on")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("main")

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
		cfg.Namespace = ns
	}
	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir, _ := cmd.Flags().GetString("data-dir")
	var store storage.Store
	if dataDir == "" {
		store = storage.NewMemStore()
	} else {
		store, err = storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	defer store.Close()

	k, err := kernel.New(cfg, store)
	if err != nil {
		return fmt.Errorf("init kernel: %w", err)
	}
	k.Start()
	defer k.Stop()
	metrics.RegisterComponent("kernel", true, "")
	metrics.RegisterComponent("storage", true, "")

	collector := metrics.NewCollector(store, func() []string {
		ns, err := k.Namespace()
		if err != nil {
			return nil
		}
		return []string{ns}
	})
	collector.Start()
	defer collector.Stop()

	listen, _ := cmd.Flags().GetString("listen")
	server := api.NewServer(k, false)
	metrics.RegisterComponent("api", true, "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(listen)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("namespace", cfg.Namespace).Str("listen", listen).Msg("bkmsyncd started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
