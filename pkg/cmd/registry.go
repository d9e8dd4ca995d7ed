// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/triggers-frontend/pkg/registry"
	"github.com/dukex/triggers-frontend/pkg/triggers/amqp"
)

func registerTriggerPlugins(reg *registry.Registry, pluginsPath string) error {
	triggerPlugins, err := reg.LoadTriggerPlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range triggerPlugins {
		reg.RegisterTrigger(plugin)
	}

	return nil
}

func registerNativeTriggers(reg *registry.Registry, amqpOptions amqp.Options) {
	reg.RegisterTrigger(amqp.NewFactory(amqpOptions))
}

// NewRegistry registers plugin triggers first so native factories win on an ID clash.
// An empty pluginsPath skips plugin loading.
func NewRegistry(log *slog.Logger, pluginsPath string, amqpOptions amqp.Options) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		err := registerTriggerPlugins(reg, pluginsPath)
		if err != nil {
			return nil, err
		}
	}

	registerNativeTriggers(reg, amqpOptions)

	return reg, nil
}
