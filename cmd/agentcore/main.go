// Package main is the entry point for the agentcore runtime.
package main

import (
	"fmt"
	"os"

	"github.com/vitaliisemenov/agentcore/pkg/logger"
)

// version and commit are stamped in at link time via -ldflags; the
// defaults below are what a local `go build` without ldflags produces.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logFile := envOr("AGENTCORE_LOG_FILE", "agentcore.log")
	log := logger.NewLogger(logger.Config{
		Level:    envOr("AGENTCORE_LOG_LEVEL", "info"),
		Format:   envOr("AGENTCORE_LOG_FORMAT", "json"),
		Output:   envOr("AGENTCORE_LOG_OUTPUT", "stdout"),
		Filename: logFile,
	})

	cli := NewCLI(log, buildInfo{version: version, commit: commit})
	cli.logConfigPath = logFile
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
