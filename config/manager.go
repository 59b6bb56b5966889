package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dyike/ThesisGo/internal/logger"
)

const configFileName = "config.json"

// Manager owns the JSON config file. Get hands out copies; Update validates,
// persists and then notifies the Watch callback. Credentials loaded from the
// environment never pass through here.
type Manager struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	current  Config
	onChange func(Config)
	watching bool
}

type managerOptions struct {
	configPath string
	seed       *Config
	debounce   time.Duration
}

type ManagerOption func(*managerOptions)

// WithConfigDir places config.json inside dir.
func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, configFileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

// WithInitialConfig is written when no file exists yet.
func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.seed = cfg
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// NewManager loads the config file, creating it from the initial config (or
// the defaults for its directory) when missing.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := readConfig(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if o.seed != nil {
			cfg = *o.seed
		} else {
			cfg = *DefaultConfigWithRoot(filepath.Dir(path))
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	default:
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return &Manager{path: path, debounce: o.debounce, current: cfg}, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON replaces the whole config with a JSON document. Keys the
// document omits keep their defaults.
func (m *Manager) UpdateFromJSON(jsonStr string) error {
	cfg, err := decodeConfig([]byte(jsonStr), filepath.Dir(m.path))
	if err != nil {
		return err
	}
	return m.Update(cfg)
}

// Set updates a single field addressed by its JSON key, e.g. "top_n" = "5".
// The value is decoded as JSON first and falls back to a plain string.
func (m *Manager) Set(key, value string) error {
	raw, err := json.Marshal(m.Get())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if _, ok := fields[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if json.Valid([]byte(value)) {
		fields[key] = json.RawMessage(value)
	} else {
		quoted, _ := json.Marshal(value)
		fields[key] = quoted
	}
	merged, _ := json.Marshal(fields)

	var next Config
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	return m.Update(next)
}

// Update validates and persists cfg. An identical config is a no-op, so the
// watcher seeing our own write does not fire the callback twice.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return nil
	}
	if err := writeConfig(m.path, cfg); err != nil {
		return err
	}
	m.apply(cfg)
	return nil
}

// Watch calls onChange after every accepted change, whether it came from
// Update or from an edit to the file. Invalid edits are logged and ignored.
// A second call only swaps the callback.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = onChange
	if m.watching {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	m.watching = true
	go m.watch(ctx, w)
	return nil
}

func (m *Manager) watch(ctx context.Context, w *fsnotify.Watcher) {
	log := logger.Get().Named("config")
	defer func() {
		w.Close()
		m.mu.Lock()
		m.watching = false
		m.mu.Unlock()
	}()

	settle := time.NewTimer(m.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) == filepath.Clean(m.path) &&
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle.Reset(m.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warnf("[Config] watcher error: %v", err)
		case <-settle.C:
			m.reloadFromDisk()
		}
	}
}

func (m *Manager) reloadFromDisk() {
	log := logger.Get().Named("config")
	cfg, err := readConfig(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Deleted underneath us: put the running config back.
		if err := writeConfig(m.path, m.Get()); err != nil {
			log.Warnf("[Config] restore %s failed: %v", m.path, err)
		}
		return
	}
	if err != nil {
		log.Warnf("[Config] reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warnf("[Config] %s rejected, keeping previous config: %v", m.path, err)
		return
	}
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	if reflect.DeepEqual(m.current, cfg) {
		m.mu.Unlock()
		return
	}
	m.current = cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decodeConfig(data, filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// decodeConfig overlays data on the defaults for root, so files written by
// an older version pick up defaults for newer keys.
func decodeConfig(data []byte, root string) (Config, error) {
	cfg := DefaultConfigWithRoot(root)
	// Maps merge on decode; start empty so removed families stay removed.
	cfg.FamilyModels = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return Config{}, fmt.Errorf("parse config json: %w", err)
	}
	if cfg.FamilyModels == nil {
		cfg.FamilyModels = DefaultFamilyModels()
	}
	return *cfg, nil
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "thesisgo", configFileName), nil
}
