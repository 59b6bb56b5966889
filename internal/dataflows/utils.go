package dataflows

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// CacheManager is a JSON file cache keyed by source, method and parameters.
type CacheManager struct {
	cacheDir string
	ttl      time.Duration
	enabled  bool
	now      func() time.Time
}

func NewCacheManager(cacheDir string, ttl time.Duration, enabled bool) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
		ttl:      ttl,
		enabled:  enabled && cacheDir != "",
		now:      time.Now,
	}
}

func (cm *CacheManager) path(source, method string, params interface{}) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return filepath.Join(cm.cacheDir, fmt.Sprintf("%s_%s_%x.json", source, method, hash))
}

// Get decodes a cached entry into result. Expired entries are removed.
func (cm *CacheManager) Get(source, method string, params interface{}, result interface{}) bool {
	if cm == nil || !cm.enabled {
		return false
	}
	filePath := cm.path(source, method, params)

	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	if cm.now().Sub(info.ModTime()) > cm.ttl {
		_ = os.Remove(filePath)
		return false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, result) == nil
}

func (cm *CacheManager) Set(source, method string, params interface{}, data interface{}) error {
	if cm == nil || !cm.enabled {
		return nil
	}
	if err := os.MkdirAll(cm.cacheDir, 0o755); err != nil {
		return err
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cm.path(source, method, params), jsonData, 0o644)
}

// RetryConfig configures exponential backoff for data source calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry runs fn until it succeeds, the retries run out or ctx ends.
func WithRetry(ctx context.Context, config *RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.BaseDelay
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-=]{0,11}$`)

// ValidateSymbol accepts ticker-shaped symbols such as AAPL, BRK-B, ^GSPC or 700.HK.
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol: %s", symbol)
	}
	return nil
}

func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
