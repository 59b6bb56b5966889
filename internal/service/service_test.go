package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
	"github.com/dyike/ThesisGo/pkg/app"
)

type fakeEngine struct {
	cfg config.Config
}

func (f *fakeEngine) Settings() config.Config { return f.cfg }

func (f *fakeEngine) Providers() []llm.ProviderID {
	return []llm.ProviderID{llm.NewProviderID("groq", "llama-3.3-70b-versatile")}
}

func (f *fakeEngine) Analyze(_ context.Context, company string, opts app.AnalyzeOptions) (*models.RunReport, []llm.ProviderStats) {
	state := models.NewAnalysisState("run-"+company, company)
	for _, stage := range consts.Stages {
		opts.Observer(stage, "running")
		_ = state.Record(stage, string(stage)+" text", "")
		opts.Observer(stage, consts.State_Success)
	}
	if opts.Revise {
		state.Revision = &models.StageOutput{Content: "revised " + company}
	}
	state.Confidence = 100
	state.Recommendation = "Hold"
	return &models.RunReport{Status: consts.State_Success, State: state, StepsCompleted: 5, TotalSteps: 5}, nil
}

func (f *fakeEngine) Scan(_ context.Context, opts app.ScanOptions) (*models.ScanResult, []llm.ProviderStats) {
	return &models.ScanResult{ID: "scan-1", LookbackDays: opts.LookbackDays, DiscoveryMode: config.DiscoveryStatic}, nil
}

// Ask reads the stored run like the real engine and echoes its thesis.
func (f *fakeEngine) Ask(ctx context.Context, runID, question string) (string, []llm.ProviderStats, error) {
	store, err := f.OpenStore()
	if err != nil {
		return "", nil, err
	}
	defer store.Close()
	report, err := store.GetRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(question) == "" {
		return "", nil, errors.New("question is required")
	}
	return question + " -> " + report.State.Output(consts.StageThesis), nil, nil
}

func (f *fakeEngine) OpenStore() (*sqlite.Store, error) {
	return sqlite.Open(f.cfg.DBPath)
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]string
}

func (r *recorder) notify(topic string, v any) {
	b, _ := json.Marshal(v)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string][]string{}
	}
	r.events[topic] = append(r.events[topic], string(b))
}

func newTestService(t *testing.T) (*Service, *recorder, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	require.NoError(t, cfg.EnsureDirectories())
	rec := &recorder{}
	e := &fakeEngine{cfg: *cfg}
	return New(func() Engine { return e }, WithNotify(rec.notify)), rec, cfg
}

func decode(t *testing.T, raw string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

func TestDispatchUnknownMethod(t *testing.T) {
	s, _, _ := newTestService(t)
	assert.Equal(t, 404, decode(t, s.Dispatch("agent.stream", "{}")).Code)
}

func TestPackageDispatchBeforeInit(t *testing.T) {
	SetDefault(nil)
	assert.Equal(t, 503, decode(t, Dispatch("system.info", "")).Code)
}

func TestSystemInfo(t *testing.T) {
	s, _, _ := newTestService(t)
	resp := decode(t, s.Dispatch("system.info", ""))
	require.Equal(t, 200, resp.Code)
	info := resp.Data.(map[string]any)
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, []any{"groq/llama-3.3-70b-versatile"}, info["providers"])
}

func TestAnalysisRequiresCompany(t *testing.T) {
	s, _, _ := newTestService(t)
	resp := decode(t, s.Dispatch("analysis.start", `{"company":"  "}`))
	assert.Equal(t, 500, resp.Code)
	assert.Equal(t, "company is required", resp.Msg)

	assert.Equal(t, 500, decode(t, s.Dispatch("analysis.start", `not json`)).Code)
}

func TestAnalysisStreamsEventsAndRecordsRun(t *testing.T) {
	s, rec, _ := newTestService(t)

	resp := decode(t, s.Dispatch("analysis.start", `{"company":"Acme"}`))
	require.Equal(t, 200, resp.Code)
	jobID := resp.Data.(map[string]any)["job_id"].(string)
	s.Wait()

	rec.mu.Lock()
	stages := rec.events["analysis.stage"]
	finished := rec.events["analysis.finished"]
	rec.mu.Unlock()
	assert.Len(t, stages, 10)
	assert.Contains(t, stages[0], `"stage":"research"`)
	require.Len(t, finished, 1)
	assert.Contains(t, finished[0], jobID)

	list := decode(t, s.Dispatch("history.list", `{"company":"acme"}`))
	require.Equal(t, 200, list.Code)
	items := list.Data.(map[string]any)["items"].([]any)
	assert.Len(t, items, 1)

	info := decode(t, s.Dispatch("history.info", `{"id":"run-Acme"}`))
	require.Equal(t, 200, info.Code, info.Msg)
	missing := decode(t, s.Dispatch("history.info", `{"id":"nope"}`))
	assert.Equal(t, "run nope not found", missing.Msg)

	stats := decode(t, s.Dispatch("history.stats", ""))
	require.Equal(t, 200, stats.Code)
}

func TestAskAfterRevisedAnalysis(t *testing.T) {
	s, rec, _ := newTestService(t)

	require.Equal(t, 200, decode(t, s.Dispatch("analysis.start", `{"company":"Acme","revise":true}`)).Code)
	s.Wait()
	rec.mu.Lock()
	finished := rec.events["analysis.finished"]
	rec.mu.Unlock()
	require.Len(t, finished, 1)
	assert.Contains(t, finished[0], `"revision":{"content":"revised Acme"`)

	resp := decode(t, s.Dispatch("analysis.ask", `{"run_id":"run-Acme","question":" Why hold? "}`))
	require.Equal(t, 200, resp.Code, resp.Msg)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "Why hold?", data["question"])
	assert.Equal(t, " Why hold?  -> thesis text", data["answer"])

	missing := decode(t, s.Dispatch("analysis.ask", `{"run_id":"nope","question":"why?"}`))
	assert.Equal(t, "run nope not found", missing.Msg)
	assert.Equal(t, "run_id is required", decode(t, s.Dispatch("analysis.ask", `{"question":"why?"}`)).Msg)
	assert.Equal(t, 500, decode(t, s.Dispatch("analysis.ask", "")).Code)
}

func TestScanRejectsUnknownMode(t *testing.T) {
	s, rec, _ := newTestService(t)
	assert.Equal(t, 500, decode(t, s.Dispatch("scan.start", `{"discovery_mode":"psychic"}`)).Code)

	require.Equal(t, 200, decode(t, s.Dispatch("scan.start", `{"lookback_days":3}`)).Code)
	s.Wait()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events["scan.finished"], 1)
	assert.Contains(t, rec.events["scan.finished"][0], `"lookback_days":3`)
}

func TestReportsListAndRead(t *testing.T) {
	s, _, cfg := newTestService(t)
	dir := filepath.Join(cfg.ResultsDir, "Acme", "2025-03-14")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"research.md", "thesis.md", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("# "+name), 0o644))
	}

	page := decode(t, s.Dispatch("reports.list", `{"limit":1}`))
	require.Equal(t, 200, page.Code)
	data := page.Data.(map[string]any)
	assert.Equal(t, "Acme/2025-03-14/research.md", data["next_cursor"])
	assert.Equal(t, true, data["has_more"])

	rest := decode(t, s.Dispatch("reports.list", `{"cursor":"Acme/2025-03-14/research.md"}`))
	items := rest.Data.(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "thesis.md", items[0].(map[string]any)["name"])

	one := decode(t, s.Dispatch("reports.info", `{"path":"Acme"}`))
	require.Equal(t, 200, one.Code, one.Msg)
	assert.Len(t, one.Data.(map[string]any)["files"].([]any), 2)

	escape := decode(t, s.Dispatch("reports.info", `{"path":"../../etc/passwd"}`))
	assert.Equal(t, "path is outside results_dir", escape.Msg)

	txt := decode(t, s.Dispatch("reports.info", `{"path":"Acme/2025-03-14/notes.txt"}`))
	assert.Equal(t, "path is not a markdown file", txt.Msg)
}
