// Package registry maps trigger types to the factories that create them.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/triggers-frontend/pkg/protocol"
)

var (
	// ErrUnknownTriggerType is returned for a trigger type no factory was registered for.
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrInvalidPlugin      = errors.New("invalid trigger plugin")
)

type Registry struct {
	logger *slog.Logger

	mu               sync.RWMutex
	triggerFactories map[string]protocol.TriggerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		triggerFactories: make(map[string]protocol.TriggerFactory),
	}
}

// LoadTriggerPlugins opens every <pluginsPath>/triggers/**/*.so file and returns the
// factory each one exports under the Trigger symbol.
func (r *Registry) LoadTriggerPlugins(pluginsPath string) ([]protocol.TriggerFactory, error) {
	return loadPlugin[protocol.TriggerFactory](r.logger, pluginsPath, "Trigger")
}

// RegisterTrigger makes a factory available under its ID. A later registration
// with the same ID replaces the earlier one.
func (r *Registry) RegisterTrigger(triggerFactory protocol.TriggerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggerFactories[triggerFactory.ID()] = triggerFactory
}

func (r *Registry) Factory(triggerType string) (protocol.TriggerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.triggerFactories[triggerType]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownTriggerType, triggerType)
	}

	return factory, nil
}

// TriggerTypes returns the registered trigger types, sorted.
func (r *Registry) TriggerTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.triggerFactories))
	for triggerType := range r.triggerFactories {
		types = append(types, triggerType)
	}

	slices.Sort(types)

	return types
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))
	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrInvalidPlugin, p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup %s in %s: %w", ErrInvalidPlugin, symbolName, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not export a %s factory", ErrInvalidPlugin, p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded trigger plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
