package main

import (
	"github.com/spf13/cobra"
)

var weaknessesLimit int

var weaknessesCmd = &cobra.Command{
	Use:   "weaknesses",
	Short: "List the weakest artifacts",
	Long: `List artifacts ordered by total weakness severity, then by how many
artifacts import them.

Examples:
  cascade weaknesses --manifest scan.json
  cascade weaknesses --limit 5 --format json`,
	Args: cobra.NoArgs,
	RunE: runWeaknesses,
}

func init() {
	weaknessesCmd.Flags().IntVar(&weaknessesLimit, "limit", 20, "Maximum artifacts to list (0 for all)")
	rootCmd.AddCommand(weaknessesCmd)
}

func runWeaknesses(cmd *cobra.Command, args []string) error {
	s, err := openSession(newLogger(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	return printResponse(s.engine.TopWeaknesses(weaknessesLimit))
}
