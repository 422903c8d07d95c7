package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "aerographer",
		Short: "Schema-driven cloud inventory and compliance scanner",
		Long: `Aerographer - cloud resource surveyor

Aerographer scans cloud accounts against declarative resource
definitions, indexes everything it finds into an immutable survey,
and evaluates registered compliance checks against every resource.

Resource kinds, pagination and data shapes come from the embedded
definition catalog; checks are Rego policies loaded at startup.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Aerographer {{.Version}} - cloud resource surveyor
`)
}
