package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/infrastructure/broker"
)

const metricsShutdownTimeout = 5 * time.Second

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run deferred deduction and suggestion jobs",
		Long: `Consumes the Redis task queue until interrupted. Serves Prometheus
metrics on metrics.addr when it is set.`,
		Args: cobra.NoArgs,
		RunE: runWorker,
	}
	cmd.AddCommand(newWorkerStatusCmd())
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withInternalDeps(ctx, func(d *internalDeps) error {
		if d.queue == nil {
			return errors.New("worker needs redis.addr (or KIN_REDIS_ADDR)")
		}

		if addr := d.Config.Metrics.Addr; addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           metricsMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				d.Log.WithField("addr", addr).Info("Serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.Log.WithError(err).Error("Metrics server failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		return broker.NewWorker(d.queue, d.Jobs, d.Log).Run(ctx)
	})
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newWorkerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and guesser state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				if d.queue == nil {
					fmt.Println("Queue: disabled (jobs run inline)")
				} else {
					n, err := d.queue.Len(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Queue: %d jobs waiting (dead letters in %s)\n", n, d.queue.DeadKey())
				}
				if d.guesser == nil {
					fmt.Println("Guesser: disabled")
				} else {
					fmt.Printf("Guesser: circuit %s\n", d.guesser.State())
				}
				return nil
			})
		},
	}
}
