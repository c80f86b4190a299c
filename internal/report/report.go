// Package report renders detection results for human and machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trustplane/hostsentry/internal/model"
)

const bannerWidth = 60

// Document bundles one scan result with its behavioral report for JSON
// output.
type Document struct {
	Result     *model.DetectionResult `json:"result"`
	Behavioral *model.AnomalyReport   `json:"behavioral,omitempty"`
}

// Text renders the human-readable scan report: a banner header, one
// DETECTED/clear block per category with confidence percentage and evidence
// bullets, and a behavioral section when a report is supplied.
func Text(result *model.DetectionResult, report *model.AnomalyReport) string {
	var b strings.Builder
	banner := strings.Repeat("=", bannerWidth)

	b.WriteString(banner + "\n")
	b.WriteString("VM & Remote Access Detection Report\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Host: %s\n", result.Hostname)
	fmt.Fprintf(&b, "Scanned: %s\n", result.Timestamp.Format(time.RFC3339))

	categories := []struct {
		result model.CategoryResult
		alert  string
		clear  string
	}{
		{result.VM, "Virtual Machine Detected!", "No VM detected"},
		{result.RemoteAccess, "Remote Access Detected!", "No remote access detected"},
		{result.ScreenShare, "Screen Sharing Detected!", "No screen sharing detected"},
	}
	for _, c := range categories {
		b.WriteString("\n")
		if c.result.Detected {
			fmt.Fprintf(&b, "[ALERT] %s\n", c.alert)
			fmt.Fprintf(&b, "Confidence: %.2f%%\n", c.result.Confidence*100)
			b.WriteString("Evidence:\n")
			for _, evidence := range c.result.Evidence {
				fmt.Fprintf(&b, "  - %s\n", evidence)
			}
		} else {
			fmt.Fprintf(&b, "[OK] %s (confidence: %.2f%%)\n", c.clear, c.result.Confidence*100)
		}
	}

	if report != nil {
		b.WriteString("\n")
		writeBehavioral(&b, report)
	}

	b.WriteString("\n" + banner + "\n")
	return b.String()
}

func writeBehavioral(b *strings.Builder, report *model.AnomalyReport) {
	if !report.SufficientData {
		fmt.Fprintf(b, "Behavioral analysis: not enough history (%d scans retained)\n", report.WindowSize)
		return
	}
	if len(report.Anomalies) == 0 {
		fmt.Fprintf(b, "Behavioral analysis: no anomalies across %d scans\n", report.WindowSize)
		return
	}

	fmt.Fprintf(b, "Behavioral analysis: %d anomalies across %d scans\n", len(report.Anomalies), report.WindowSize)
	for _, event := range report.Anomalies {
		fmt.Fprintf(b, "  [WARN] %s\n", event.Message)
	}
}

// JSON renders the result and optional behavioral report as one indented
// JSON document.
func JSON(result *model.DetectionResult, report *model.AnomalyReport) ([]byte, error) {
	doc := Document{Result: result, Behavioral: report}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
