package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/debug"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/metrics"
	"github.com/dyike/ThesisGo/pkg/app"
)

// session carries the global flags and lazily builds the config manager and
// the engine runtime. Commands that only touch the config file never build
// an engine.
type session struct {
	configPath  string
	debug       bool
	einoDebug   bool
	metricsAddr string

	out io.Writer
	err io.Writer

	mgr     *config.Manager
	runtime *app.Runtime
	metrics *http.Server
	log     *logger.Logger
}

func newSession() *session {
	return &session{out: os.Stdout, err: os.Stderr}
}

func (s *session) init() error {
	if err := logger.Init(s.debug); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	s.log = logger.Get().Named("cli")
	return nil
}

func (s *session) manager() (*config.Manager, error) {
	if s.mgr != nil {
		return s.mgr, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	opts := []config.ManagerOption{config.WithInitialConfig(config.DefaultConfigWithRoot(cwd))}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	mgr, err := config.NewManager(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s.mgr = mgr
	return mgr, nil
}

// engine returns the current engine, building the runtime on first use.
// Flags override the file: --debug and --eino-debug only ever switch on.
func (s *session) engine(ctx context.Context) (*app.Engine, error) {
	if s.runtime == nil {
		mgr, err := s.manager()
		if err != nil {
			return nil, err
		}
		builder := func(cfg config.Config) (*app.Engine, error) {
			cfg.Debug = cfg.Debug || s.debug
			cfg.EinoDebugEnabled = cfg.EinoDebugEnabled || s.einoDebug
			if s.metricsAddr != "" {
				cfg.MetricsAddr = s.metricsAddr
			}
			return app.BuildEngine(cfg)
		}
		rt, err := app.NewRuntime(mgr, app.WithBuilder(builder))
		if err != nil {
			return nil, err
		}
		s.runtime = rt
		s.startServices(ctx, rt.Engine())
	}
	return s.runtime.Engine(), nil
}

func (s *session) startServices(ctx context.Context, e *app.Engine) {
	if err := debug.NewEinoDebugger(&e.Config).Initialize(ctx); err != nil {
		s.log.Warnf("[CLI] eino debug disabled: %v", err)
	}
	if e.Config.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.metrics = &http.Server{
		Addr:              e.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warnf("[CLI] metrics server stopped: %v", err)
		}
	}()
	s.log.Infof("[CLI] metrics at http://%s/metrics", e.Config.MetricsAddr)
}

func (s *session) close() {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}
	if s.runtime != nil {
		s.runtime.Close()
	}
	logger.Sync()
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
