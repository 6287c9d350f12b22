// Command cypherguard runs Cypher against Neo4j on behalf of automated
// callers. Every query is classified before it is sent, mutating queries are
// refused while read-only mode is on, execution is bounded by a timeout that
// aborts the server-side transaction, and results are trimmed to a size
// budget.
//
// Typical use:
//
//	cypherguard classify 'MATCH (n) DETACH DELETE n'
//	cypherguard query 'MATCH (p:Person) RETURN p.name LIMIT 5' -o json
//	cypherguard schema --sample-size 50
//	cypherguard call run_query '{"query": "RETURN 1"}'
//
// Connection settings come from the config file and the NEO4J_* variables.
// The exit status tells policy violations, timeouts and database errors
// apart; see internal.ExitCodeFor.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
)

func main() {
	os.Exit(run(context.Background()))
}

// run executes the root command and returns the process exit status. A
// panic is reported as a generic failure, with the stack under --verbose.
func run(ctx context.Context) (code int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "cypherguard: internal error: %v\n", r)
		if internal.IsVerbose() {
			os.Stderr.Write(debug.Stack())
		} else {
			fmt.Fprintln(os.Stderr, "rerun with --verbose for a stack trace")
		}
		code = internal.ExitError
	}()

	if err := Execute(ctx); err != nil {
		return internal.HandleError(rootCmd, err)
	}
	return internal.ExitSuccess
}
