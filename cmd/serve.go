package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/api"
	"github.com/sells-group/dnc-scrub/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for lead checks and change-list jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		checker, err := newChecker(env)
		if err != nil {
			return err
		}
		ctrl, err := newController(env)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			mon := monitoring.NewChecker(
				monitoring.NewCollector(env.Jobs),
				monitoring.NewAlerter(cfg.Monitoring, cfg.Notify),
				cfg.Monitoring,
			)
			go mon.Run(ctx)
		}

		apiSrv := api.NewServer(ctx, checker, ctrl, api.Options{
			ChunkSize:        cfg.Check.ChunkSize,
			ChunkConcurrency: cfg.Check.ChunkConcurrency,
			CORSOrigins:      cfg.Server.CORSOrigins,
			Gatherer:         env.Gatherer,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           apiSrv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		// Background jobs see the cancelled context and record themselves failed.
		apiSrv.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
