package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/engine"
	"github.com/zero-day-ai/cypherguard/internal/toolschema"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

var queryCmd = newQueryCmd(false)

var writeCmd = newQueryCmd(true)

// newQueryCmd builds the query command, or the write command when write is
// set. Both take the same arguments.
func newQueryCmd(write bool) *cobra.Command {
	var (
		params     []string
		paramsJSON string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <cypher>",
		Short: "Run a read-only Cypher query",
		Long: `Run a Cypher query under the configured policy and limits.

The query is classified first. While read-only mode is enforced a query
that could modify the graph is rejected without reaching the database.
Use - to read the query from stdin.`,
		Example: `  cypherguard query 'MATCH (p:Person) WHERE p.age > $age RETURN p.name' --param age=30
  cypherguard query 'MATCH (n) RETURN n LIMIT 5' --timeout 2s -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := queryText(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			parsed, err := parseParams(params, paramsJSON)
			if err != nil {
				return err
			}
			var timeoutArg *time.Duration
			if cmd.Flags().Changed("timeout") {
				timeoutArg = &timeout
			}

			b, err := openBackend(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer b.Close()

			run := b.engine.RunQuery
			if write {
				run = b.engine.WriteQuery
			}
			resp, err := run(cmd.Context(), text, parsed, timeoutArg)
			if err != nil {
				return err
			}
			return printQueryResponse(cmd, resp)
		},
	}
	if write {
		cmd.Use = "write <cypher>"
		cmd.Short = "Run a Cypher query in a write transaction"
		cmd.Long = `Run a Cypher query in a write transaction and report the update counters.

Only available when read-only mode is disabled (policy.read_only: false
or NEO4J_READ_ONLY=false).`
		cmd.Example = `  cypherguard write 'CREATE (:Person {name: $name})' --param name='"Alice"'`
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil,
		"Query parameter as name=value; the value is parsed as JSON and falls back to a string")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "", "Query parameters as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Execution timeout (default from config, capped at limits.max_timeout)")
	return cmd
}

// queryText returns arg, or stdin when arg is "-". An interactive terminal
// on stdin is refused rather than waited on.
func queryText(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", internal.NewCLIError(internal.ExitInvalidRequest, "expected a query on stdin, got a terminal")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", internal.WrapError(internal.ExitError, "failed to read query from stdin", err)
	}
	return string(data), nil
}

// parseParams merges --params-json and --param values. --param wins on
// conflicting names.
func parseParams(pairs []string, rawJSON string) (map[string]any, error) {
	params := map[string]any{}
	if rawJSON != "" {
		obj, err := toolschema.DecodeArguments([]byte(rawJSON))
		if err != nil {
			return nil, types.WrapError(types.INVALID_REQUEST, "invalid --params-json", err)
		}
		maps.Copy(params, obj)
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, types.NewError(types.INVALID_REQUEST,
				fmt.Sprintf("invalid --param %q (expected name=value)", pair))
		}
		if v, err := toolschema.DecodeValue([]byte(raw)); err == nil {
			params[name] = v
		} else {
			params[name] = raw
		}
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func printQueryResponse(cmd *cobra.Command, resp *engine.QueryResponse) error {
	if globalFlags.GetOutputFormat() != internal.FormatText {
		return formatter(cmd).PrintData(resp)
	}

	f := formatter(cmd)
	if len(resp.Keys) > 0 {
		rows := make([][]string, len(resp.Rows))
		for i, row := range resp.Rows {
			cells := make([]string, len(resp.Keys))
			for j, key := range resp.Keys {
				cells[j] = cellText(row[key])
			}
			rows[i] = cells
		}
		if err := f.PrintTable(resp.Keys, rows); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%d row(s) in %dms [%s, request %s]\n",
		resp.RowCount, resp.ElapsedMs, resp.Classification, resp.RequestID)
	if resp.Marker != nil {
		fmt.Fprintf(out, "truncated: %s\n", resp.Marker.Message)
	}
	if resp.Counters != nil {
		c := resp.Counters
		fmt.Fprintf(out, "nodes created: %d, deleted: %d; relationships created: %d, deleted: %d; properties set: %d\n",
			c.NodesCreated, c.NodesDeleted, c.RelationshipsCreated, c.RelationshipsDeleted, c.PropertiesSet)
	}
	return nil
}

// cellText renders a value for a table cell. Strings print bare, anything
// else as compact JSON.
func cellText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
