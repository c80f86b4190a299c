package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/trustplane/hostsentry/internal/alert"
	"github.com/trustplane/hostsentry/internal/anomaly"
	"github.com/trustplane/hostsentry/internal/api"
	"github.com/trustplane/hostsentry/internal/archive"
	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/engine"
	"github.com/trustplane/hostsentry/internal/history"
	"github.com/trustplane/hostsentry/internal/logging"
	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/monitor"
	"github.com/trustplane/hostsentry/internal/signature"
	"github.com/trustplane/hostsentry/internal/snapshot"
)

var monitorConfig string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the continuous monitor with the HTTP API",
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorConfig, "config", "", "YAML configuration file")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(monitorConfig)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.Hostname)
	slog.SetDefault(logger.Logger)

	logger.LogSystemEvent("config_loaded",
		"scan_interval", cfg.ScanInterval.String(),
		"history_path", cfg.HistoryPath,
		"max_history", cfg.MaxHistory,
		"http_addr", cfg.HTTPAddr,
		"nats_enabled", cfg.NATSURL != "",
		"archive_enabled", cfg.ArchivePath != "")

	repo, err := signature.NewRepository(logger.Logger)
	if err != nil {
		return err
	}
	sigs := repo.Load(cfg.SignaturePath)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	provider := snapshot.NewLocal(cfg.Hostname, logger.Logger)
	eng := engine.New(sigs, cfg.Detection, logger.Logger)
	store := history.NewStore(cfg.HistoryPath, cfg.MaxHistory, m, logger.Logger)
	analyzer := anomaly.NewAnalyzer(cfg.Anomaly, logger.Logger)

	alerts, err := alert.NewPublisher(cfg, m, logger.Logger)
	if err != nil {
		return fmt.Errorf("alert publisher: %w", err)
	}
	defer alerts.Close()

	var arch *archive.Store
	if cfg.ArchivePath != "" {
		arch, err = archive.NewStore(cfg.ArchivePath, logger.Logger)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer arch.Close()
	}

	mon := monitor.New(provider, eng, store, analyzer, alerts, arch, m, logger.Logger, cfg.ScanInterval)
	server := api.NewServer(cfg.HTTPAddr, mon, store, prometheus.DefaultGatherer, logger.Logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			serverErr <- err
		}
	}()
	logger.LogSystemEvent("http_server_started", "addr", cfg.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.LogSystemEvent("shutdown_signal", "signal", sig.String())
	case err := <-serverErr:
		cancel()
		wg.Wait()
		return err
	}

	cancel()
	wg.Wait()

	select {
	case err := <-serverErr:
		logger.Warn("HTTP server shutdown error", "error", err)
	default:
	}

	logger.LogSystemEvent("monitor_stopped")
	return nil
}
