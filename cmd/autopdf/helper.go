package main

import (
	"fmt"

	"github.com/harunnryd/autopdf/cmd/autopdf/runtime"

	"github.com/harunnryd/autopdf/internal/config"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(*runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(loadedCfg); err != nil {
		return err
	}

	signals := NewSignalHandler(cmd.Context())
	signals.Start()
	defer signals.Stop()

	components, err := runtime.NewRuntimeBuilder().
		WithContext(signals.Context()).
		WithConfig(loadedCfg).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components)
}
