// Package service exposes the engine to an embedding host through
// JSON-in/JSON-out methods. Long operations run in the background and
// report through the bridge notifier.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
	"github.com/dyike/ThesisGo/pkg/app"
	"github.com/dyike/ThesisGo/pkg/bridge"
)

const Version = "0.3.0"

// Engine is the part of app.Engine the service needs.
type Engine interface {
	Settings() config.Config
	Providers() []llm.ProviderID
	Analyze(ctx context.Context, company string, opts app.AnalyzeOptions) (*models.RunReport, []llm.ProviderStats)
	Scan(ctx context.Context, opts app.ScanOptions) (*models.ScanResult, []llm.ProviderStats)
	Ask(ctx context.Context, runID, question string) (string, []llm.ProviderStats, error)
	OpenStore() (*sqlite.Store, error)
}

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

type Service struct {
	engine func() Engine
	notify func(topic string, v any)
	jobs   sync.WaitGroup
	log    *logger.Logger
}

type Option func(*Service)

// WithNotify replaces the bridge notifier; tests capture events with it.
func WithNotify(fn func(topic string, v any)) Option {
	return func(s *Service) {
		if fn != nil {
			s.notify = fn
		}
	}
}

// New wraps an engine getter. The getter is called per request so a
// runtime reload is picked up by the next call.
func New(engine func() Engine, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		notify: bridge.NotifyJSON,
		log:    logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromRuntime serves whatever engine the runtime currently holds.
func FromRuntime(rt *app.Runtime, opts ...Option) *Service {
	return New(func() Engine { return rt.Engine() }, opts...)
}

// Dispatch routes one host call and returns a JSON Response.
func (s *Service) Dispatch(method string, paramsJSON string) string {
	var (
		result any
		err    error
	)
	switch method {
	case "system.info":
		result = s.SystemInfo()
	case "analysis.start":
		result, err = s.StartAnalysis(paramsJSON)
	case "analysis.ask":
		result, err = s.Ask(paramsJSON)
	case "scan.start":
		result, err = s.StartScan(paramsJSON)
	case "history.list":
		result, err = s.History(paramsJSON)
	case "history.info":
		result, err = s.HistoryInfo(paramsJSON)
	case "history.stats":
		result, err = s.HistoryStats()
	case "reports.list":
		result, err = s.Reports(paramsJSON)
	case "reports.info":
		result, err = s.ReportInfo(paramsJSON)
	default:
		return jsonResp(404, "Method not found", nil)
	}
	if err != nil {
		return jsonResp(500, err.Error(), nil)
	}
	return jsonResp(200, "Ok", result)
}

// Wait blocks until background jobs finish.
func (s *Service) Wait() {
	s.jobs.Wait()
}

func (s *Service) SystemInfo() any {
	e := s.engine()
	providers := e.Providers()
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, string(p))
	}
	cfg := e.Settings()
	return map[string]any{
		"version":        Version,
		"providers":      names,
		"discovery_mode": cfg.DiscoveryMode,
		"search_backend": cfg.SearchBackend,
		"use_graph":      cfg.UseGraph,
	}
}

type stageEvent struct {
	JobID  string       `json:"job_id"`
	Stage  consts.Stage `json:"stage"`
	Status string       `json:"status"`
}

type analysisFinished struct {
	JobID     string              `json:"job_id"`
	Report    *models.RunReport   `json:"report"`
	Providers []llm.ProviderStats `json:"providers"`
}

type scanFinished struct {
	JobID     string              `json:"job_id"`
	Scan      *models.ScanResult  `json:"scan"`
	Providers []llm.ProviderStats `json:"providers"`
}

// StartAnalysis runs the pipeline in the background. Progress arrives as
// analysis.stage events and the report as analysis.finished.
func (s *Service) StartAnalysis(paramsJSON string) (any, error) {
	params, err := decodeParams[AnalysisParams](paramsJSON, true)
	if err != nil {
		return nil, err
	}
	params.Company = strings.TrimSpace(params.Company)
	if params.Company == "" {
		return nil, errors.New("company is required")
	}

	e := s.engine()
	opts := app.AnalyzeOptions{UseGraph: e.Settings().UseGraph, SaveReports: true, Revise: params.Revise}
	if params.UseGraph != nil {
		opts.UseGraph = *params.UseGraph
	}
	jobID := uuid.NewString()
	opts.Observer = func(stage consts.Stage, status string) {
		s.notify("analysis.stage", stageEvent{JobID: jobID, Stage: stage, Status: status})
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		started := time.Now()
		report, stats := e.Analyze(context.Background(), params.Company, opts)
		if !params.NoSave && report.State != nil {
			s.withStore(e, func(store *sqlite.Store) error {
				return store.SaveRun(context.Background(), report, time.Since(started))
			})
		}
		s.notify("analysis.finished", analysisFinished{JobID: jobID, Report: report, Providers: stats})
	}()

	return map[string]string{"status": "started", "job_id": jobID}, nil
}

// Ask answers a follow-up question about a recorded run. It blocks for one
// completion, so it is not a background job.
func (s *Service) Ask(paramsJSON string) (any, error) {
	params, err := decodeParams[AskParams](paramsJSON, true)
	if err != nil {
		return nil, err
	}
	runID := strings.TrimSpace(params.RunID)
	if runID == "" {
		return nil, errors.New("run_id is required")
	}

	answer, stats, err := s.engine().Ask(context.Background(), runID, params.Question)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":    runID,
		"question":  strings.TrimSpace(params.Question),
		"answer":    answer,
		"providers": stats,
	}, nil
}

func (s *Service) StartScan(paramsJSON string) (any, error) {
	params, err := decodeParams[ScanParams](paramsJSON, false)
	if err != nil {
		return nil, err
	}
	switch params.DiscoveryMode {
	case "", config.DiscoveryStatic, config.DiscoveryLLM:
	default:
		return nil, fmt.Errorf("unknown discovery_mode %q", params.DiscoveryMode)
	}

	e := s.engine()
	jobID := uuid.NewString()
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		result, stats := e.Scan(context.Background(), app.ScanOptions{
			LookbackDays:  params.LookbackDays,
			TopN:          params.TopN,
			DiscoveryMode: params.DiscoveryMode,
		})
		s.withStore(e, func(store *sqlite.Store) error {
			return store.SaveScan(context.Background(), result)
		})
		s.notify("scan.finished", scanFinished{JobID: jobID, Scan: result, Providers: stats})
	}()

	return map[string]string{"status": "started", "job_id": jobID}, nil
}

// withStore runs fn against a short-lived store handle; failures are logged.
func (s *Service) withStore(e Engine, fn func(store *sqlite.Store) error) {
	store, err := e.OpenStore()
	if err != nil {
		s.log.Warnf("[Service] history store unavailable: %v", err)
		return
	}
	defer store.Close()
	if err := fn(store); err != nil {
		s.log.Warnf("[Service] history write failed: %v", err)
	}
}

func jsonResp(code int, msg string, data any) string {
	resp := Response{Code: code, Msg: msg, Data: data}
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(Response{Code: 500, Msg: err.Error()})
	}
	return string(b)
}

var defaultService atomic.Pointer[Service]

// SetDefault installs the service used by the package-level Dispatch.
func SetDefault(s *Service) {
	defaultService.Store(s)
}

func Dispatch(method string, paramsJSON string) string {
	s := defaultService.Load()
	if s == nil {
		return jsonResp(503, "SDK not initialized", nil)
	}
	return s.Dispatch(method, paramsJSON)
}
