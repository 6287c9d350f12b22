package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/cypherguard/cmd/cypherguard/internal"
	"github.com/zero-day-ai/cypherguard/internal/graph"
	"github.com/zero-day-ai/cypherguard/internal/observability"
	"github.com/zero-day-ai/cypherguard/internal/types"
)

var healthWatch time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity and pool state",
	Long: `Check the database connection and print the pool counters.

With --watch the check repeats at the given interval until interrupted,
and the Prometheus endpoint is served when metrics are enabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, err := openBackend(ctx, cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer b.Close()

		if healthWatch > 0 {
			return watchHealth(ctx, b)
		}

		report := healthReport{
			Components: b.monitor.CheckAll(ctx),
			Pool:       b.engine.Stats(),
		}
		if err := printHealth(cmd, report); err != nil {
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(report.Components)) {
			if status := report.Components[name]; !status.IsHealthy() {
				return internal.NewCLIError(internal.ExitDatabaseError,
					fmt.Sprintf("%s is %s: %s", name, status.State, status.Message))
			}
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().DurationVar(&healthWatch, "watch", 0, "Repeat the check at this interval until interrupted")
}

type healthReport struct {
	Components map[string]types.HealthStatus `json:"components" yaml:"components"`
	Pool       graph.PoolStats               `json:"pool" yaml:"pool"`
}

// watchHealth runs periodic checks, and the metrics endpoint when there is
// one, until ctx is cancelled. State changes are logged by the monitor.
func watchHealth(ctx context.Context, b *backend) error {
	g, ctx := errgroup.WithContext(ctx)

	b.monitor.CheckAll(ctx)
	g.Go(func() error {
		b.monitor.Watch(ctx, healthWatch)
		return nil
	})
	if cfg.Metrics.Enabled && b.metrics.Handler != nil {
		g.Go(func() error {
			b.logger.Info(ctx, "serving metrics", "port", cfg.Metrics.Port)
			return observability.ServeMetrics(ctx, cfg.Metrics.Port, b.metrics.Handler)
		})
	}
	return g.Wait()
}

func printHealth(cmd *cobra.Command, report healthReport) error {
	f := formatter(cmd)
	if globalFlags.GetOutputFormat() != internal.FormatText {
		return f.PrintData(report)
	}

	rows := make([][]string, 0, len(report.Components))
	for _, name := range slices.Sorted(maps.Keys(report.Components)) {
		status := report.Components[name]
		rows = append(rows, []string{name, string(status.State), status.Message})
	}
	if err := f.PrintTable([]string{"component", "state", "message"}, rows); err != nil {
		return err
	}

	p := report.Pool
	fmt.Fprintf(cmd.OutOrStdout(), "\npool: %d/%d in use, %d acquired, %d released, %d exhausted\n",
		p.InUse, p.Size, p.Acquired, p.Released, p.Exhausted)
	return nil
}
