package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/config"
	"github.com/zero-day-ai/cypherguard/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "cypherguard",
	Short: "Cypherguard - guarded Cypher execution for LLM agents",
	Long: `Cypherguard runs Cypher queries against Neo4j on behalf of LLM agents.

Queries are classified before they reach the database, and mutating
queries are rejected while read-only mode is enforced. Every query runs
under a hard deadline, and responses are cut to a size budget with an
explicit truncation marker.

Configuration is read from $CYPHERGUARD_HOME/config.yaml when present,
and from NEO4J_* and CYPHERGUARD_* environment variables.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// cfg is the configuration loaded for the running command. Commands that
// skip loading leave it nil.
var cfg *config.Config

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is called before any command runs to load configuration
func loadConfig(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

	// These commands never touch the database.
	switch cmd.Name() {
	case "version", "help", "completion", "classify":
		return nil
	}

	loader := config.NewConfigLoader(config.NewValidator())
	path := flags.ResolveConfigPath(os.Getenv)

	var loaded *config.Config
	if flags.ConfigFile != "" {
		loaded, err = loader.Load(path)
	} else {
		loaded, err = loader.LoadWithDefaults(path)
	}
	if err != nil {
		return err
	}

	switch {
	case flags.IsVerbose():
		loaded.Logging.Level = "debug"
	case flags.IsQuiet():
		loaded.Logging.Level = "error"
	}

	cfg = loaded
	return nil
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

// formatter returns the Formatter for --output writing to the command's
// output stream.
func formatter(cmd *cobra.Command) internal.Formatter {
	return internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.GetOutputFormat() == internal.FormatText {
			cmd.Println(version.String())
			return nil
		}
		return formatter(cmd).PrintData(version.Info())
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for Cypherguard.

To load completions:

Bash:

  $ source <(cypherguard completion bash)

Zsh:

  $ cypherguard completion zsh > "${fpath[1]}/_cypherguard"

Fish:

  $ cypherguard completion fish | source

PowerShell:

  PS> cypherguard completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
