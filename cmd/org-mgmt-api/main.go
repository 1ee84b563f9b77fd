// Package main is the entry point for the org management API server.
package main

import (
	"os"

	"github.com/pcf-tools/org-mgmt-server/cmd/org-mgmt-api/app"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

func main() {
	// Logging is configured from the environment before anything else
	// runs; the serve command re-reads the level from the full config.
	logger.Initialize(os.Getenv("LOG_LEVEL"))
	defer func() {
		_ = logger.Sync()
	}()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
