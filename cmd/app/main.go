// Package main provides the entry point for the fieldcrypt CLI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// version is injected via ldflags during build.
var version = "v0.1.0"

func main() {
	cmd := &cli.Command{
		Name:    "fieldcrypt",
		Usage:   "Field-level encryption key management and tooling",
		Version: version,
		Commands: append(
			append(getSystemCommands(version), getKeyCommands()...),
			getFieldCommands()...,
		),
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
