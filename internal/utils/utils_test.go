package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/internal/models"
)

func TestLoadPrompt(t *testing.T) {
	for _, name := range []string{"research", "sentiment", "valuation", "thesis", "critique", "recommendation", "revision", "answer", "system"} {
		text, err := LoadPrompt(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, text, name)
	}

	_, err := LoadPrompt("missing")
	assert.Error(t, err)
	assert.Contains(t, PromptNames(), "thesis")
}

func TestSafePathSegment(t *testing.T) {
	assert.Equal(t, "Apple_Inc", SafePathSegment("Apple Inc."))
	assert.Equal(t, "AT_T", SafePathSegment("AT&T"))
	assert.Equal(t, "unnamed", SafePathSegment("  ...  "))
}

func TestWriteMarkdown(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	require.NoError(t, WriteMarkdown(dir, "thesis.md", "# Thesis"))

	data, err := os.ReadFile(filepath.Join(dir, "thesis.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Thesis", string(data))
}

func TestExportScanCSV(t *testing.T) {
	result := &models.ScanResult{
		ID: "scan-7",
		TopStocks: []*models.SymbolQuote{
			{Symbol: "NVDA", Name: "NVIDIA", Sector: "Technology", Price: 120.5, PriceChangePct: 12.25, Observations: 5, Source: "yahoo", Score: 1.5},
			{Symbol: "AAPL", Name: "Apple", Price: 190, Observations: 5},
		},
		TopSectors: []*models.SymbolQuote{{Symbol: "XLK", Name: "Technology"}},
	}

	path, err := ExportScanCSV(t.TempDir(), result)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "scan_scan-7_")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, "Kind", rows[0][0])
	assert.Equal(t, []string{"stock", "1", "NVDA"}, rows[1][:3])
	assert.Equal(t, "12.2500", rows[1][7])
	assert.Equal(t, "2", rows[2][1])
	assert.Equal(t, "sector", rows[3][0])
}
