package main

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/toolschema"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to agents",
	Long: `List the tool definitions, with JSON Schema inputs, that an agent
integration should advertise. write_query is listed only when read-only
mode is disabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tools := toolschema.Catalog(cfg.EngineLimits(), cfg.EnginePolicy())

		f := formatter(cmd)
		if globalFlags.GetOutputFormat() != internal.FormatText {
			return f.PrintData(tools)
		}

		rows := make([][]string, len(tools))
		for i, t := range tools {
			rows[i] = []string{t.Name, strconv.FormatBool(t.ReadOnly), t.Description}
		}
		return f.PrintTable([]string{"name", "read only", "description"}, rows)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [arguments-json]",
	Short: "Call a tool with JSON arguments",
	Long: `Call a tool the way an agent would: the arguments are validated against
the tool's input schema and the result is printed as structured data.
Omitted arguments are an empty object; - reads them from stdin.`,
	Example: `  cypherguard call run_query '{"query": "MATCH (n:Person) RETURN n.name LIMIT $n", "params": {"n": 5}}'
  cypherguard call get_schema '{"sample_size": 25}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		switch {
		case len(args) == 1:
		case args[1] == "-":
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return internal.WrapError(internal.ExitError, "failed to read arguments from stdin", err)
			}
			raw = data
		default:
			raw = []byte(args[1])
		}

		b, err := openBackend(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer b.Close()

		result, err := toolschema.NewDispatcher(b.engine).CallJSON(cmd.Context(), args[0], raw)
		if err != nil {
			return err
		}

		// Tool results are structured; text output falls back to JSON.
		format := globalFlags.GetOutputFormat()
		if format == internal.FormatText {
			format = internal.FormatJSON
		}
		return internal.NewFormatter(format, cmd.OutOrStdout()).PrintData(result)
	},
}
