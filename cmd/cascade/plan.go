package main

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <artifact>",
	Short: "Plan the regeneration cascade for an artifact",
	Long: `Compute the blast radius of regenerating an artifact and layer it into
waves. Every artifact lands in a wave after all the in-cascade artifacts it
imports.

Examples:
  cascade plan internal/store/db.go --manifest scan.yaml
  cascade plan src/util.ts --scip index.scip --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := openSession(newLogger(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.PlanCascade(args[0])
	if err != nil {
		return err
	}
	return printResponse(report)
}
