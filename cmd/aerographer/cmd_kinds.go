package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/aerographer/schema"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the resource kinds in the definition catalog",
	RunE:  runKinds,
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}

func runKinds(cmd *cobra.Command, args []string) error {
	registry, err := schema.Load()
	if err != nil {
		return err
	}
	for _, path := range registry.Kinds() {
		s, _ := registry.Schema(path)
		scope := "regional"
		if s.Global {
			scope = "global"
		}
		fmt.Printf("%-32s %-8s id=%s paginator=%s\n", path, scope, s.IDAttribute, s.Paginator)
	}
	return nil
}
