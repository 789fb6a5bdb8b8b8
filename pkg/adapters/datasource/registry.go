package datasource

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
)

// Factory builds an adapter from the shared source configuration.
type Factory func(cfg *config.SourceConfig, logger *zap.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register is called by each adapter subpackage's init() function.
// Thread-safe for concurrent init() calls.
func Register(sourceType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sourceType] = factory
}

// New builds an adapter for the given source type.
func New(sourceType string, cfg *config.SourceConfig, logger *zap.Logger) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[sourceType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", apperrors.ErrUnsupportedSource, sourceType, Types())
	}
	return factory(cfg, logger)
}

// Types returns the registered source types, sorted.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsRegistered checks if a source type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}
