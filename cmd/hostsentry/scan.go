package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/trustplane/hostsentry/internal/anomaly"
	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/engine"
	"github.com/trustplane/hostsentry/internal/history"
	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/report"
	"github.com/trustplane/hostsentry/internal/signature"
	"github.com/trustplane/hostsentry/internal/snapshot"
)

const scanTimeout = 30 * time.Second

var (
	scanFormat     string
	scanOutput     string
	scanSnapshot   string
	scanSignatures string
	scanNoHistory  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection scan and print the report",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "report format: text or json")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "write the report to this file instead of stdout")
	scanCmd.Flags().StringVar(&scanSnapshot, "snapshot", "", "analyze a snapshot JSON file instead of the live host")
	scanCmd.Flags().StringVar(&scanSignatures, "signatures", "", "signature document path")
	scanCmd.Flags().BoolVar(&scanNoHistory, "no-history", false, "analyze without recording to the persisted history")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "text" && scanFormat != "json" {
		return fmt.Errorf("unknown format %q, want text or json", scanFormat)
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if scanSignatures != "" {
		cfg.SignaturePath = scanSignatures
	}

	// The report owns stdout; diagnostics stay on stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	repo, err := signature.NewRepository(logger)
	if err != nil {
		return err
	}
	sigs := repo.Load(cfg.SignaturePath)

	var provider snapshot.Provider
	if scanSnapshot != "" {
		provider = snapshot.NewFile(scanSnapshot)
	} else {
		provider = snapshot.NewLocal(cfg.Hostname, logger)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	snap, err := provider.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect snapshot: %w", err)
	}

	eng := engine.New(sigs, cfg.Detection, logger)
	result := eng.Analyze(snap)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	store := history.NewStore(cfg.HistoryPath, cfg.MaxHistory, m, logger)
	analyzer := anomaly.NewAnalyzer(cfg.Anomaly, logger)

	// The behavioral window always includes this scan; --no-history only
	// skips writing it back.
	entry := result.HistoryEntry()
	var window = store.Snapshot()
	if scanNoHistory {
		window = append(window, entry)
	} else {
		store.Append(entry)
		window = store.Snapshot()
	}
	behavioral := analyzer.Analyze(window)

	var out []byte
	if scanFormat == "json" {
		out, err = report.JSON(result, &behavioral)
		if err != nil {
			return err
		}
		out = append(out, '\n')
	} else {
		out = []byte(report.Text(result, &behavioral))
	}

	if scanOutput != "" {
		if err := os.WriteFile(scanOutput, out, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", scanOutput)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}
