// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command solidlsp queries code symbols through the project's language
// servers.
//
// Usage:
//
//	solidlsp overview src/server.go
//	solidlsp find src/server.go "Service/Handle[2]"
//	solidlsp references src/server.go Handle
//	solidlsp rename src/server.go oldName newName
//
// The project root defaults to the working directory; server commands and
// routing come from solidlsp.yaml in the root when present.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessellate-ai/solidlsp/logging"
	"github.com/tessellate-ai/solidlsp/telemetry"
)

var (
	rootPath  string
	logLevel  string
	logDir    string
	jsonOut   bool
	withOtel  bool
	depth     int
	substring bool

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:           "solidlsp",
		Short:         "Symbol queries and refactoring through language servers",
		Long:          "solidlsp launches the language servers a project needs on demand\nand answers symbol-level questions: file overviews, name-path symbol\nlookup, references and renames.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(logLevel),
				LogDir:  logDir,
				Service: "cli",
			})
			slog.SetDefault(logger.Slog())

			if withOtel {
				shutdown, err := telemetry.Init(cmd.Context(), telemetry.DefaultConfig())
				if err != nil {
					return fmt.Errorf("init telemetry: %w", err)
				}
				otelShutdown = shutdown
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if otelShutdown != nil {
				_ = otelShutdown(context.Background())
			}
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	otelShutdown func(context.Context) error
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&withOtel, "telemetry", false, "Enable OpenTelemetry exporters (configured via OTEL_* env vars)")

	overviewCmd.Flags().IntVar(&depth, "depth", 0, "Maximum symbol nesting depth (0 = unlimited)")
	findCmd.Flags().BoolVar(&substring, "substring", false, "Match the pattern leaf as a substring")

	rootCmd.AddCommand(overviewCmd, findCmd, referencesCmd, renameCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
