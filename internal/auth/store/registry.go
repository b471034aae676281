package store

import "sync"

var (
	registryMu      sync.RWMutex
	registeredStore Store
)

// Register sets the process-wide credential store used by the CLI setup flows
// and the server when no explicit store is injected.
func Register(s Store) {
	registryMu.Lock()
	registeredStore = s
	registryMu.Unlock()
}

// Registered returns the registered store, or nil when none was set.
func Registered() Store {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredStore
}
