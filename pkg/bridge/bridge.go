// Package bridge forwards engine events to the host application that loaded
// the shared library. Without a registered sink every event is dropped.
package bridge

import (
	"encoding/json"
	"sync"
)

type NotifyFunc func(topic string, payload string)

var (
	mu   sync.RWMutex
	impl NotifyFunc
)

// SetNotifyImpl installs the sink; the cgo entry point calls it once.
func SetNotifyImpl(f NotifyFunc) {
	mu.Lock()
	impl = f
	mu.Unlock()
}

func Notify(topic string, payload string) {
	mu.RLock()
	f := impl
	mu.RUnlock()
	if f != nil {
		f(topic, payload)
	}
}

// NotifyJSON marshals v and sends it; values that cannot be encoded are
// reported as {"error": ...} under the same topic.
func NotifyJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	Notify(topic, string(payload))
}
