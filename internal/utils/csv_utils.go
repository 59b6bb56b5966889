package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dyike/ThesisGo/internal/models"
)

var scanCSVHeaders = []string{
	"Kind", "Rank", "Symbol", "Name", "Sector", "Price", "PriceChange", "PriceChangePct",
	"Volatility", "VolumeTrend", "Observations", "Source", "Score",
}

// WriteScanCSV writes the ranked stocks, sectors and indices of a scan as one
// table. Kind tells the three groups apart.
func WriteScanCSV(w io.Writer, result *models.ScanResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(scanCSVHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	groups := []struct {
		kind   string
		quotes []*models.SymbolQuote
	}{
		{"stock", result.TopStocks},
		{"sector", result.TopSectors},
		{"index", result.Indices},
	}
	for _, g := range groups {
		for i, q := range g.quotes {
			row := []string{
				g.kind,
				strconv.Itoa(i + 1),
				q.Symbol,
				q.Name,
				q.Sector,
				formatFloat(q.Price),
				formatFloat(q.PriceChange),
				formatFloat(q.PriceChangePct),
				formatFloat(q.Volatility),
				formatFloat(q.VolumeTrend),
				strconv.Itoa(q.Observations),
				string(q.Source),
				formatFloat(q.Score),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write %s row: %w", q.Symbol, err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportScanCSV writes the scan to <dir>/scans/scan_<id>_<time>.csv and
// returns the file path.
func ExportScanCSV(dir string, result *models.ScanResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("scan result is nil")
	}
	dirPath := filepath.Join(dir, "scans")
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	filename := fmt.Sprintf("scan_%s_%s.csv", SafePathSegment(result.ID), ts.Format("20060102_150405"))
	filePath := filepath.Join(dirPath, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if err := WriteScanCSV(file, result); err != nil {
		return "", err
	}
	return filePath, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
