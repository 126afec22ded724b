package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cascade/internal/history"
)

var (
	historyLimit   int
	historySeed    string
	historyOutcome string
)

var historyCmd = &cobra.Command{
	Use:   "history [executionId]",
	Short: "Show finished executions",
	Long: `List finished executions, newest first, or show one in full.

Examples:
  cascade history
  cascade history --seed internal/store/db.go --outcome aborted
  cascade history 3f2b9c1e-... --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum executions to list")
	historyCmd.Flags().StringVar(&historySeed, "seed", "", "Only executions for this seed artifact")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "Only executions with this outcome (completed, aborted)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.DataDir(), newLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		st, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("execution %s not found", args[0])
		}
		return printResponse(st)
	}

	records, err := store.List(history.ListOptions{
		SeedID:  historySeed,
		Outcome: historyOutcome,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	return printResponse(records)
}
