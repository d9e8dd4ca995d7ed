package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/triggers-frontend/pkg/cmd"
	"github.com/dukex/triggers-frontend/pkg/config"
	"github.com/dukex/triggers-frontend/pkg/log"
	"github.com/dukex/triggers-frontend/pkg/triggers/amqp"
)

var errNoBootstrapFile = errors.New("--bootstrap-file is required")

func ValidateBootstrap(_ context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("triggers-frontend").With("action", "validate")

	path := command.String("bootstrap-file")
	if path == "" {
		return errNoBootstrapFile
	}

	registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), amqp.Options{})
	if err != nil {
		return err
	}

	file, err := config.LoadBootstrap(path)
	if err != nil {
		return err
	}

	err = file.Validate(registry)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s: %d trigger(s) valid\n", path, len(file.Triggers))

	return nil
}

func ListTriggerTypes(_ context.Context, command *cli.Command) error {
	logger := log.Setup(command.String("log-level"), command.String("log-format"))

	registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), amqp.Options{})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, strings.Join(registry.TriggerTypes(), "\n"))

	return nil
}
