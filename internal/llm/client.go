// Package llm is the completion client shared by every agent stage. It walks
// an ordered provider registry, rotates away from failing providers and never
// returns an error: when nothing answers it serves a canned response.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/metrics"
)

// Backend talks to one provider family.
type Backend interface {
	Generate(ctx context.Context, model string, msgs []*schema.Message, opts Options) (string, error)
}

// Options are per-request generation parameters.
type Options struct {
	Topic       Topic
	MaxTokens   int
	Temperature float32
}

type Option func(*Options)

// WithTopic tags the request so the right canned answer is served on failure.
func WithTopic(t Topic) Option {
	return func(o *Options) { o.Topic = t }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = t }
}

// Result is a completion tagged with how it was produced.
type Result struct {
	Text     string     `json:"text"`
	Provider ProviderID `json:"provider,omitempty"`
	Fallback bool       `json:"fallback"`
	Attempts int        `json:"attempts"`
	Topic    Topic      `json:"topic"`
}

// Client is a per-session completion client. It is not safe for concurrent
// use: the rotation index is shared by all calls on the same Client.
type Client struct {
	registry     []ProviderID
	backends     map[string]Backend
	index        int
	budget       int
	delays       []time.Duration
	timeoutPause time.Duration
	otherPause   time.Duration
	defaults     Options
	sleep        func(ctx context.Context, d time.Duration) error
	stats        *statsBook
	log          *logger.Logger
}

type ClientOption func(*Client)

// WithRetryBudget sets the number of attempts shared by one Complete call.
func WithRetryBudget(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.budget = n
		}
	}
}

// WithRetryDelays sets the rate-limit backoff schedule, indexed by attempt.
func WithRetryDelays(delays []time.Duration) ClientOption {
	return func(c *Client) {
		if len(delays) > 0 {
			c.delays = append([]time.Duration(nil), delays...)
		}
	}
}

// WithPauses sets the fixed waits after timeout and unclassified failures.
func WithPauses(timeout, other time.Duration) ClientOption {
	return func(c *Client) {
		c.timeoutPause = timeout
		c.otherPause = other
	}
}

func WithDefaults(maxTokens int, temperature float32) ClientOption {
	return func(c *Client) {
		c.defaults.MaxTokens = maxTokens
		c.defaults.Temperature = temperature
	}
}

// WithSleeper replaces the wait function; tests use it to skip real delays.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func NewClient(registry []ProviderID, backends map[string]Backend, opts ...ClientOption) *Client {
	c := &Client{
		registry:     append([]ProviderID(nil), registry...),
		backends:     backends,
		budget:       3,
		delays:       []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second},
		timeoutPause: 2 * time.Second,
		otherPause:   time.Second,
		defaults:     Options{MaxTokens: 4000, Temperature: 0.7},
		sleep:        sleepContext,
		stats:        newStatsBook(),
		log:          logger.Get().Named("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backends == nil {
		c.backends = map[string]Backend{}
	}
	return c
}

// Complete returns the completion text. It never returns an empty string.
func (c *Client) Complete(ctx context.Context, msgs []*schema.Message, opts ...Option) string {
	return c.CompleteResult(ctx, msgs, opts...).Text
}

func (c *Client) CompleteResult(ctx context.Context, msgs []*schema.Message, opts ...Option) Result {
	o := c.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Topic == "" {
		o.Topic = DetectTopic(lastContent(msgs))
	}

	if len(c.registry) == 0 {
		c.log.Warnf("[Completion] %v, serving %s fallback", ErrNoProviders, o.Topic)
		return c.fallback(o.Topic, 0)
	}

	attempts := 0
	for attempt := 0; attempt < c.budget; attempt++ {
		if ctx.Err() != nil {
			break
		}
		attempts++
		provider := c.registry[c.index]

		start := time.Now()
		text, err := c.generate(ctx, provider, msgs, o)
		latency := time.Since(start)
		if err == nil {
			c.stats.success(provider, latency)
			metrics.CompletionAttempts.WithLabelValues(string(provider), "success").Inc()
			c.log.Debugf("[Completion] %s answered in %s", provider, latency.Round(time.Millisecond))
			return Result{Text: text, Provider: provider, Attempts: attempts, Topic: o.Topic}
		}

		class := ClassifyError(err)
		c.stats.failure(provider, latency, err)
		metrics.CompletionAttempts.WithLabelValues(string(provider), classLabel(class)).Inc()
		c.log.Warnf("[Completion] %s failed (%s, attempt %d/%d): %v", provider, classLabel(class), attempt+1, c.budget, err)

		var wait time.Duration
		switch class {
		case ErrRateLimit:
			c.rotate()
			wait = c.delays[min(attempt, len(c.delays)-1)]
		case ErrModelNotFound:
			c.rotate()
		case ErrTimeout:
			wait = c.timeoutPause
		default:
			c.rotate()
			wait = c.otherPause
		}

		if attempt == c.budget-1 || wait <= 0 {
			continue
		}
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
	}

	c.log.Warnf("[Completion] all providers failed after %d attempts, serving %s fallback", attempts, o.Topic)
	return c.fallback(o.Topic, attempts)
}

func (c *Client) generate(ctx context.Context, provider ProviderID, msgs []*schema.Message, o Options) (string, error) {
	backend, ok := c.backends[provider.Family()]
	if !ok || backend == nil {
		return "", fmt.Errorf("%s: %w", provider, ErrNoBackend)
	}
	text, err := backend.Generate(ctx, provider.Model(), msgs, o)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}
	return text, nil
}

func (c *Client) fallback(topic Topic, attempts int) Result {
	metrics.CompletionFallbacks.WithLabelValues(string(topic)).Inc()
	return Result{Text: FallbackText(topic), Fallback: true, Attempts: attempts, Topic: topic}
}

func (c *Client) rotate() {
	c.index = (c.index + 1) % len(c.registry)
}

// Reset moves rotation back to the first provider.
func (c *Client) Reset() {
	c.index = 0
}

// Index reports the current rotation position.
func (c *Client) Index() int {
	return c.index
}

func (c *Client) Providers() []ProviderID {
	return append([]ProviderID(nil), c.registry...)
}

// Stats reports per-provider outcomes in registry order.
func (c *Client) Stats() []ProviderStats {
	return c.stats.snapshot(c.registry)
}

func classLabel(class error) string {
	switch {
	case errors.Is(class, ErrRateLimit):
		return "rate_limit"
	case errors.Is(class, ErrTimeout):
		return "timeout"
	case errors.Is(class, ErrModelNotFound):
		return "not_found"
	}
	return "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
