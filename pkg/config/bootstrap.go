// Package config loads the triggers created at startup from a YAML file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dukex/triggers-frontend/pkg/manager"
	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/registry"
)

var ErrDuplicateTriggerID = errors.New("duplicate trigger_id")

// BootstrapFile is the structure of the bootstrap YAML file.
type BootstrapFile struct {
	Triggers []TriggerConfig `yaml:"triggers" validate:"dive"`
}

// TriggerConfig describes one trigger. TriggerInfo is handed to the trigger
// type's factory as it would arrive over the API.
type TriggerConfig struct {
	TriggerID   string                  `yaml:"trigger_id"   json:"trigger_id"   validate:"required"`
	TriggerName string                  `yaml:"trigger_name" json:"trigger_name" validate:"required"`
	TriggerType string                  `yaml:"trigger_type" json:"trigger_type" validate:"required"`
	TriggerInfo map[string]any          `yaml:"trigger_info" json:"trigger_info"`
	Workflows   []models.WorkflowTarget `yaml:"workflows"    json:"workflows"    validate:"dive"`
}

// LoadBootstrap reads and validates a bootstrap file. ${VAR} references are
// expanded from the environment before parsing.
func LoadBootstrap(filepath string) (BootstrapFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return BootstrapFile{}, fmt.Errorf("failed to read bootstrap file %s: %w", filepath, err)
	}

	return ParseBootstrap([]byte(os.ExpandEnv(string(data))))
}

func ParseBootstrap(data []byte) (BootstrapFile, error) {
	var file BootstrapFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&file)
	if err != nil && !errors.Is(err, io.EOF) {
		return BootstrapFile{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	err = validator.New(validator.WithRequiredStructEnabled()).Struct(file)
	if err != nil {
		return BootstrapFile{}, fmt.Errorf("invalid bootstrap file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Triggers))
	for _, trigger := range file.Triggers {
		if _, ok := seen[trigger.TriggerID]; ok {
			return BootstrapFile{}, fmt.Errorf("%w: %s", ErrDuplicateTriggerID, trigger.TriggerID)
		}

		seen[trigger.TriggerID] = struct{}{}
	}

	return file, nil
}

// CreateRequest converts the entry into the request the manager spawns it from.
func (t TriggerConfig) CreateRequest() (manager.CreateTriggerRequest, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return manager.CreateTriggerRequest{}, fmt.Errorf("encoding trigger %s: %w", t.TriggerID, err)
	}

	return manager.CreateTriggerRequest{
		TriggerID:   t.TriggerID,
		TriggerName: t.TriggerName,
		TriggerType: t.TriggerType,
		Workflows:   t.Workflows,
		Body:        body,
	}, nil
}

// Validate checks every entry against its trigger type's factory without
// spawning anything. All failures are returned joined.
func (f BootstrapFile) Validate(reg *registry.Registry) error {
	var errs []error

	for _, trigger := range f.Triggers {
		err := validateTrigger(reg, trigger)
		if err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", trigger.TriggerID, err))
		}
	}

	return errors.Join(errs...)
}

func validateTrigger(reg *registry.Registry, trigger TriggerConfig) error {
	factory, err := reg.Factory(strings.ToLower(trigger.TriggerType))
	if err != nil {
		return err
	}

	req, err := trigger.CreateRequest()
	if err != nil {
		return err
	}

	return factory.Validate(req.Body)
}
