package splitkit

import (
	"log/slog"
	"sync"
)

// activeFactories is a process-wide, mutex-protected instance count keyed
// by API key. Its only purpose is warning about duplicate factory
// instantiation, once for every registration beyond the first per key.
var activeFactories = struct {
	mu    sync.Mutex
	count map[string]int
}{count: make(map[string]int)}

// registerFactory increments the live-instance count for apiKey and logs
// a warning if this is a duplicate (an instance for this key already
// existed).
func registerFactory(apiKey string, logger *slog.Logger) {
	activeFactories.mu.Lock()
	defer activeFactories.mu.Unlock()
	activeFactories.count[apiKey]++
	if activeFactories.count[apiKey] > 1 {
		logger.Warn("splitkit: multiple factory instances created with the same API key; this is almost always a mistake and wastes resources")
	}
}

func unregisterFactory(apiKey string) {
	activeFactories.mu.Lock()
	defer activeFactories.mu.Unlock()
	if activeFactories.count[apiKey] <= 1 {
		delete(activeFactories.count, apiKey)
		return
	}
	activeFactories.count[apiKey]--
}
