package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/app"
	httptransport "github.com/gorelikserver/scada-sms/internal/alarm_service/transport/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm HTTP API with a background dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			deps, err := e.buildDispatcher(ctx)
			if err != nil {
				return err
			}
			worker := app.NewDispatchWorker(deps.dispatcher, e.cfg.DispatchPollInterval, e.logger)
			router := httptransport.NewRouter(e.cfg.HTTP, deps.queue, deps.audit, worker, e.logger)
			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", e.cfg.HTTPPort),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return worker.Run(gctx)
			})
			g.Go(func() error {
				e.logger.Info("Alarm API listening", "port", e.cfg.HTTPPort, "queue_dir", deps.queue.Dir())
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				e.logger.Info("Shutting down HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			// Drain anything left over from before the restart.
			worker.Trigger()

			if err := g.Wait(); err != nil {
				return err
			}
			e.logger.Info("Alarm service shut down")
			return nil
		},
	}
}
