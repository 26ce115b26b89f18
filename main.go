package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/check"
	"github.com/cloudhut/klag/kafka"
	"github.com/cloudhut/klag/logging"
	"github.com/cloudhut/klag/prometheus"
)

func main() {
	startupLogger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to create startup logger: %w", err))
	}

	cfg, err := newConfig(startupLogger)
	if err != nil {
		startupLogger.Fatal("failed to parse config", zap.Error(err))
	}

	logger := logging.NewLogger(cfg.Logger, cfg.Exporter.Namespace).Named("main")

	// Setup context that stops when the application receives an interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kafkaSvc, err := kafka.NewService(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("failed to setup kafka service", zap.Error(err))
	}
	defer kafkaSvc.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = kafkaSvc.TestConnection(connectCtx)
	cancel()
	if err != nil {
		logger.Fatal("failed to test connectivity to Kafka cluster", zap.Error(err))
	}

	checkSvc, err := check.New(cfg.Check, logger, kafkaSvc)
	if err != nil {
		logger.Fatal("failed to setup consumer offsets check", zap.Error(err))
	}
	logger.Info("created check", zap.Stringer("check", checkSvc))

	exporter, err := prometheus.NewExporter(cfg.Exporter, logger, checkSvc)
	if err != nil {
		logger.Fatal("failed to setup prometheus exporter", zap.Error(err))
	}
	exporter.InitializeMetrics()
	promclient.MustRegister(exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics",
		promhttp.InstrumentMetricHandler(
			promclient.DefaultRegisterer,
			promhttp.HandlerFor(
				promclient.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
	)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Status: Ready"))
	})

	address := net.JoinHostPort(cfg.Exporter.Host, strconv.Itoa(cfg.Exporter.Port))
	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal, stopping http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Exporter.PassTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("listening on address", zap.String("listen_address", address))
	if cfg.Exporter.TLSCertFile != "" {
		err = srv.ListenAndServeTLS(cfg.Exporter.TLSCertFile, cfg.Exporter.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("error starting HTTP server", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
