package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/schema"
)

var schemaSampleSize int

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Describe the graph schema by sampling",
	Long: `Describe node labels, relationship types and their properties.

Up to --sample-size instances of each label and relationship type are
inspected, always in a read transaction. A label or type marked as
truncated has more instances than were sampled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sampleSize *int
		if cmd.Flags().Changed("sample-size") {
			sampleSize = &schemaSampleSize
		}

		b, err := openBackend(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer b.Close()

		summary, err := b.engine.GetSchema(cmd.Context(), sampleSize)
		if err != nil {
			return err
		}
		return printSchema(cmd, summary)
	},
}

func init() {
	schemaCmd.Flags().IntVar(&schemaSampleSize, "sample-size", 0,
		"Instances sampled per label and relationship type (default from config)")
}

func printSchema(cmd *cobra.Command, summary *schema.Summary) error {
	f := formatter(cmd)
	if globalFlags.GetOutputFormat() != internal.FormatText {
		return f.PrintData(summary)
	}

	labelRows := make([][]string, len(summary.Labels))
	for i, l := range summary.Labels {
		labelRows[i] = []string{
			l.Name,
			sampledText(l.Sampled, l.Truncated),
			propertiesText(l.Properties),
		}
	}
	if err := f.PrintTable([]string{"label", "sampled", "properties"}, labelRows); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())

	relRows := make([][]string, len(summary.RelationshipTypes))
	for i, r := range summary.RelationshipTypes {
		endpoints := make([]string, len(r.Endpoints))
		for j, e := range r.Endpoints {
			endpoints[j] = fmt.Sprintf("(%s)->(%s)", e.Start, e.End)
		}
		relRows[i] = []string{
			r.Name,
			sampledText(r.Sampled, r.Truncated),
			strings.Join(endpoints, " "),
			propertiesText(r.Properties),
		}
	}
	if err := f.PrintTable([]string{"type", "sampled", "endpoints", "properties"}, relRows); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nsample size %d, %d queries in %dms\n",
		summary.Sampling.SampleSize, summary.Sampling.Queries, summary.Sampling.ElapsedMs)
	return nil
}

func sampledText(n int, truncated bool) string {
	if truncated {
		return strconv.Itoa(n) + "+"
	}
	return strconv.Itoa(n)
}

// propertiesText renders properties as name:TYPE, with ? marking nullable.
func propertiesText(props []schema.Property) string {
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = p.Name + ":" + p.Type
		if p.Nullable {
			parts[i] += "?"
		}
	}
	return strings.Join(parts, ", ")
}
