package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Serial guards a Client with a mutex so scanner workers can share one
// rotation index. Calls run one at a time.
type Serial struct {
	mu     sync.Mutex
	client *Client
}

func NewSerial(c *Client) *Serial {
	return &Serial{client: c}
}

func (s *Serial) Complete(ctx context.Context, msgs []*schema.Message, opts ...Option) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Complete(ctx, msgs, opts...)
}

func (s *Serial) Stats() []ProviderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Stats()
}
