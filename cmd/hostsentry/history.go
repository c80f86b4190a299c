package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/trustplane/hostsentry/internal/anomaly"
	"github.com/trustplane/hostsentry/internal/config"
	"github.com/trustplane/hostsentry/internal/history"
	"github.com/trustplane/hostsentry/internal/metrics"
	"github.com/trustplane/hostsentry/internal/model"
)

var (
	historyAsJSON bool
	historyClear  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Summarize or clear the persisted detection history",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyAsJSON, "json", false, "emit JSON instead of text")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "empty the persisted history")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	store := history.NewStore(cfg.HistoryPath, cfg.MaxHistory, m, logger)

	if historyClear {
		removed := store.Clear()
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d history entries from %s\n", removed, cfg.HistoryPath)
		return nil
	}

	entries := store.Snapshot()
	stats := anomaly.ComputeStats(entries)
	behavioral := anomaly.NewAnalyzer(cfg.Anomaly, logger).Analyze(entries)

	if historyAsJSON {
		doc := struct {
			Stats      model.HistoryStats  `json:"stats"`
			Behavioral model.AnomalyReport `json:"behavioral"`
		}{stats, behavioral}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	if stats.TotalEntries == 0 {
		fmt.Fprintf(out, "Detection history is empty (%s)\n", cfg.HistoryPath)
		return nil
	}

	fmt.Fprintf(out, "Detection history: %d entries, %s to %s\n",
		stats.TotalEntries,
		stats.FirstTimestamp.Format(time.RFC3339),
		stats.LastTimestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "  vm:            %d detections (%.1f%%), avg confidence %.2f%%\n",
		stats.VMDetections, stats.VMRate*100, stats.AvgVMConfidence*100)
	fmt.Fprintf(out, "  remote access: %d detections (%.1f%%), avg confidence %.2f%%\n",
		stats.RemoteDetections, stats.RemoteRate*100, stats.AvgRemoteConfidence*100)
	fmt.Fprintf(out, "  screen share:  %d detections (%.1f%%), avg confidence %.2f%%\n",
		stats.ScreenDetections, stats.ScreenRate*100, stats.AvgScreenConfidence*100)

	if !behavioral.SufficientData {
		fmt.Fprintf(out, "Behavioral analysis: not enough history (%d scans retained)\n", behavioral.WindowSize)
		return nil
	}
	if len(behavioral.Anomalies) == 0 {
		fmt.Fprintf(out, "Behavioral analysis: no anomalies across %d scans\n", behavioral.WindowSize)
		return nil
	}
	fmt.Fprintf(out, "Behavioral analysis: %d anomalies across %d scans\n",
		len(behavioral.Anomalies), behavioral.WindowSize)
	for _, event := range behavioral.Anomalies {
		fmt.Fprintf(out, "  [WARN] %s\n", event.Message)
	}
	return nil
}
