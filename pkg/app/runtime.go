package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/logger"
)

const (
	TopicEngineReloaded     = "engine.reloaded"
	TopicEngineReloadFailed = "engine.reload_failed"
)

type EngineBuilder func(config.Config) (*Engine, error)

type Option func(*Runtime)

// WithBuilder swaps BuildEngine, mostly for tests.
func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.build = builder
		}
	}
}

// WithNotifier receives engine lifecycle events as topic + JSON payload.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

type reloadedEvent struct {
	Version   uint64 `json:"version"`
	BuiltAt   string `json:"built_at"`
	Providers int    `json:"providers"`
}

type reloadFailedEvent struct {
	Error   string `json:"error"`
	Serving uint64 `json:"serving_version"`
}

// Runtime holds the current Engine and swaps in a new one whenever the
// config manager reports a change. Callers always see a complete engine:
// a failed rebuild leaves the old one in place.
type Runtime struct {
	mgr     *config.Manager
	current atomic.Pointer[Engine]
	build   EngineBuilder
	notify  func(topic, payload string)
	log     *logger.Logger

	// serialises rebuilds; Update and the file watcher can race.
	rebuild sync.Mutex
	stop    context.CancelFunc
}

func NewRuntime(mgr *config.Manager, opts ...Option) (*Runtime, error) {
	if mgr == nil {
		return nil, errors.New("config manager is required")
	}

	r := &Runtime{
		mgr:   mgr,
		build: BuildEngine,
		log:   logger.Get().Named("runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.swap(mgr.Get()); err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	if err := mgr.Watch(ctx, r.onConfigChange); err != nil {
		stop()
		return nil, err
	}
	r.stop = stop
	return r, nil
}

// Engine returns the engine built from the latest accepted config.
func (r *Runtime) Engine() *Engine {
	return r.current.Load()
}

func (r *Runtime) Close() {
	if r.stop != nil {
		r.stop()
	}
}

// UpdateConfigJSON replaces the config; the engine is rebuilt before it returns.
func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.mgr.UpdateFromJSON(jsonStr)
}

// Set updates one config key, see config.Manager.Set.
func (r *Runtime) Set(key, value string) error {
	return r.mgr.Set(key, value)
}

func (r *Runtime) onConfigChange(cfg config.Config) {
	if err := r.swap(cfg); err != nil {
		r.log.Warnf("[Runtime] engine reload failed, keeping v%d: %v", r.Engine().Version, err)
	}
}

func (r *Runtime) swap(cfg config.Config) error {
	r.rebuild.Lock()
	defer r.rebuild.Unlock()

	next, err := r.build(cfg)
	if err != nil {
		var serving uint64
		if prev := r.Engine(); prev != nil {
			serving = prev.Version
		}
		r.publish(TopicEngineReloadFailed, reloadFailedEvent{Error: err.Error(), Serving: serving})
		return err
	}
	r.current.Store(next)
	r.publish(TopicEngineReloaded, reloadedEvent{
		Version:   next.Version,
		BuiltAt:   next.BuiltAt.UTC().Format(time.RFC3339),
		Providers: len(next.Providers()),
	})
	return nil
}

func (r *Runtime) publish(topic string, event any) {
	if r.notify == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	r.notify(topic, string(payload))
}
