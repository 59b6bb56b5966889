package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnalysisParams starts an analysis run.
type AnalysisParams struct {
	Company  string `json:"company"`
	UseGraph *bool  `json:"use_graph,omitempty"`
	NoSave   bool   `json:"no_save,omitempty"`
	Revise   bool   `json:"revise,omitempty"`
}

// AskParams is a follow-up question about a recorded run.
type AskParams struct {
	RunID    string `json:"run_id"`
	Question string `json:"question"`
}

type ScanParams struct {
	LookbackDays  int    `json:"lookback_days"`
	TopN          int    `json:"top_n"`
	DiscoveryMode string `json:"discovery_mode"`
}

// HistoryParams pages through recorded runs, newest first.
type HistoryParams struct {
	Company string `json:"company"`
	Cursor  int64  `json:"cursor"`
	Limit   int    `json:"limit"` // default 50, max 200
}

type HistoryInfoParams struct {
	ID string `json:"id"`
}

// ReportListParams pages through the per-stage markdown reports.
type ReportListParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type ReportListItem struct {
	Name string `json:"name"`
	Path string `json:"path"` // relative to results_dir
}

type ReportFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ReportInfoParams names a report file or a directory of reports.
type ReportInfoParams struct {
	Path string `json:"path"`
}

// decodeParams unmarshals the host's JSON arguments. Blank input yields the
// zero value unless the method needs arguments.
func decodeParams[T any](paramsJSON string, required bool) (T, error) {
	var params T
	if strings.TrimSpace(paramsJSON) == "" {
		if required {
			return params, errors.New("params are required")
		}
		return params, nil
	}
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return params, fmt.Errorf("invalid params: %w", err)
	}
	return params, nil
}
