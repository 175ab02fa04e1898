package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "engine",
		Short: "Admin CLI for the pipeline orchestrator execution engine",
		Long: "Runs the worker pool, manages the store schema, and inspects or " +
			"nudges a single execution. Configuration is layered env-var-over-" +
			"YAML (set ENGINE_CONFIG to a YAML file path; every other setting " +
			"has an ENGINE_<SECTION>_<KEY> env var, see config.go). Set " +
			"ENGINE_STAGE_CATALOG to a YAML stage-type catalog path to register " +
			"simple linear stage types without writing Go, and ENGINE_OTEL_ENABLED " +
			"to turn on dispatch tracing.",
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newInspectCmd(),
		newRestartCmd(),
		newCancelCmd(),
	)
	return root
}
