package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrendaWanda/ControlCalidad/internal/api"
	"github.com/BrendaWanda/ControlCalidad/internal/metrics"
	"github.com/BrendaWanda/ControlCalidad/internal/monitoring"
	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/tsdb"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with monitoring and notification workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		g, gctx := errgroup.WithContext(ctx)
		opts := []quality.Option{quality.WithMetrics(metrics.New(prometheus.DefaultRegisterer))}

		if cfg.Monitoring.NotifyNewAlerts {
			notifier := monitoring.NewNotifier(monitoring.NewWebhook(cfg.Monitoring.WebhookURL), cfg.Monitoring.NotifyRatePerSec)
			opts = append(opts, quality.WithObserver(notifier))
			g.Go(func() error {
				notifier.Run(gctx)
				return nil
			})
		}

		if cfg.Influx.URL != "" {
			sink := tsdb.NewInfluxSink(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
			opts = append(opts, quality.WithObserver(sink))
			g.Go(func() error {
				sink.Run(gctx)
				return nil
			})
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring, monitoring.NewWebhook(cfg.Monitoring.WebhookURL)),
				cfg.Monitoring,
			)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		svc := newService(st, opts...)
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(svc, st, api.Options{
				RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
				CORSOrigins:    cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return eris.Wrap(srv.Shutdown(sctx), "server shutdown")
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
