// Package debug starts the eino visual debug server for the graph runner.
package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/logger"
)

type EinoDebugger struct {
	config *config.Config
	log    *logger.Logger
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{
		config: cfg,
		log:    logger.Get().Named("debug"),
	}
}

// Initialize must run before the graph is compiled so the debug server can
// register it. It is a no-op when eino debugging is disabled.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	d.log.Debugf("[EinoDebug] initializing visual debug plugin on port %d", d.config.EinoDebugPort)
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	d.log.Infof("[EinoDebug] debug server at %s", d.GetDebugURL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
