package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/cypher"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <cypher>",
	Short: "Classify a Cypher query without running it",
	Long: `Report whether a query is read-only or mutating, and why.

Nothing is sent to the database. Use - to read the query from stdin.`,
	Example: `  cypherguard classify 'MATCH (n) DETACH DELETE n'
  echo 'CALL db.labels()' | cypherguard classify -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := queryText(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		analysis := cypher.Analyze(text)
		if globalFlags.GetOutputFormat() != internal.FormatText {
			return formatter(cmd).PrintData(analysis)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", analysis.Classification, analysis.Reason)
		if len(analysis.Statements) > 1 || globalFlags.IsVerbose() {
			for i, stmt := range analysis.Statements {
				fmt.Fprintf(out, "  [%d] %s: %s\n", i+1, stmt.Classification, strings.TrimSpace(stmt.Text))
				if len(stmt.Findings) > 0 {
					fmt.Fprintf(out, "      findings: %s\n", strings.Join(stmt.Findings, ", "))
				}
			}
		}
		return nil
	},
}
