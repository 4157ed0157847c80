package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhad/koa/server"
	"go.uber.org/zap"
)

var flagRequestTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat assistant over HTTP and websockets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConfig(); err != nil {
			return err
		}
		ctx := cmd.Context()

		index, err := openIndex(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer index.Close()

		registry, err := newRegistry(ctx, cfg, index, logger)
		if err != nil {
			return err
		}
		if index.Len() == 0 {
			logger.Warn("index is empty; replies will carry no retrieved context")
		}

		srv := server.NewServer(server.Config{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			RequestTimeout:    flagRequestTimeout,
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		}, registry, index, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&flagRequestTimeout, "request-timeout", 60*time.Second, "maximum time to answer one chat request")
	rootCmd.AddCommand(serveCmd)
}
