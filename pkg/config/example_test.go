package config_test

import (
	"fmt"

	"github.com/wonny/fxcast/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Artifacts: %s\n", cfg.ArtifactDir)
	fmt.Printf("Prediction log in Postgres: %v\n", cfg.Database.Enabled())
}
