package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xhad/koa/internal/logging"
	"github.com/xhad/koa/pkg/config"
	"go.uber.org/zap"
)

var (
	flagConfig string
	flagDebug  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "koa",
	Short:         "Retrieval-augmented assistant for Hawaii state government information",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		loaded, err := config.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagDebug {
			loaded.Log.Debug = true
		}
		cfg = loaded
		logger = logging.Must(cfg.Log.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// validateConfig rejects a configuration the assistant cannot run with.
// The offline commands skip it so scraping works without model credentials.
func validateConfig() error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: search config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
