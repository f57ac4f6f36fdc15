package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/ternarybob/peto/internal/models"
)

// WriteReport serializes a pipeline report to disk as JSON, optionally
// with a PDF summary alongside. Returns the JSON path.
func WriteReport(report *models.PipelineReport, dir string, renderPDF bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	stamp := report.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	base := fmt.Sprintf("pipeline_report_%s", stamp.Format("20060102_150405"))

	jsonPath := filepath.Join(dir, base+".json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if renderPDF {
		pdfPath := filepath.Join(dir, base+".pdf")
		if err := writePDFSummary(report, pdfPath); err != nil {
			return jsonPath, fmt.Errorf("report JSON written, PDF failed: %w", err)
		}
	}
	return jsonPath, nil
}

// writePDFSummary renders a one-page human-readable run summary
func writePDFSummary(report *models.PipelineReport, path string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "Application Pipeline Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("User: %s", report.UserID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Run: %s - %s",
		report.StartedAt.Format(time.RFC3339),
		report.FinishedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Submitted %d | Paused %d | Blocked %d | Failed %d | Skipped %d | Closed %d",
		report.Submitted, report.Paused, report.Blocked, report.Failed, report.Skipped, report.JobsClosed),
		"", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(70, 6, "Job", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 6, "Company", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, "Result", "B", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Detail", "B", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, attempt := range report.Attempts {
		detail := attempt.Error
		if detail == "" {
			detail = attempt.BlockerMessage
		}
		if len(detail) > 60 {
			detail = detail[:60] + "..."
		}
		pdf.CellFormat(70, 5, truncate(attempt.Title, 45), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 5, truncate(attempt.Company, 25), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 5, string(attempt.Result), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, detail, "", 1, "L", false, 0, "")
	}

	return pdf.OutputFileAndClose(path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
