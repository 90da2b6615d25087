package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	coursefuse "github.com/systemshift/coursefs/internal/fuse"
)

func newMountCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		debug       bool
	)
	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount all courses read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountpoint := args[0]
			logger := a.logger.WithField("component", "mount")

			if err := os.MkdirAll(mountpoint, 0755); err != nil {
				return errors.Wrap(err, "create mountpoint")
			}

			server, err := coursefuse.MountFS(mountpoint, a.repo, coursefuse.Options{
				Name:   a.cfg.AppName,
				Debug:  debug,
				Logger: a.logger.WithField("component", "fuse"),
			})
			if err != nil {
				return err
			}

			var metrics *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metrics = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.WithError(err).Error("metrics listener stopped")
					}
				}()
				logger.WithField("addr", metricsAddr).Info("serving metrics")
			}

			ctx, stop := signal.NotifyContext(a.ctx(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				logger.Info("shutting down")
				if metrics != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metrics.Shutdown(shutdownCtx)
				}
				if err := server.Unmount(); err != nil {
					logger.WithError(err).Warn("unmount failed")
				}
			}()

			logger.WithField("pid", os.Getpid()).Info("ready")
			server.Wait()
			logger.Info("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every FUSE request")
	return cmd
}
