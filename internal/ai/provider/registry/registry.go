package registry

import (
	"fmt"
	"sync"

	"github.com/jvillegas-dev/chatbot-backend/internal/ai/provider/types"
)

var (
	mu        sync.RWMutex
	providers = make(map[string]types.Provider)
)

// Register makes a provider available under its name. Registering the same
// name twice replaces the previous provider.
func Register(name string, provider types.Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[name] = provider
}

// Get returns the provider registered under name.
func Get(name string) (types.Provider, error) {
	mu.RLock()
	defer mu.RUnlock()

	provider, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// List returns the registered provider names.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}

// Unregister removes a provider.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(providers, name)
}

// Clear removes every registered provider. Intended for tests.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	providers = make(map[string]types.Provider)
}
