package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/gatekeeper/internal/app"
	"github.com/odyssey-erp/gatekeeper/jobs"
)

// Factory opens the job helpers used by a command.
type Factory func() (*JobsCLI, error)

// DefaultFactory connects to the Redis instance named by the environment.
func DefaultFactory() (*JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewJobsCLI(cfg.RedisOptions().Asynq())
}

// NewRootCmd creates the gatekeeperctl root command.
func NewRootCmd(factory Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gatekeeperctl",
		Short:         "Operate Gatekeeper background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newJobsCmd(factory))
	return cmd
}

func newJobsCmd(factory Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect queued jobs",
	}
	cmd.AddCommand(newTriggerCmd(factory), newStatsCmd(factory), newScheduledCmd(factory))
	return cmd
}

func newTriggerCmd(factory Factory) *cobra.Command {
	var retentionHours int
	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Enqueue a job now",
	}
	expire := &cobra.Command{
		Use:   "expire <request-id>",
		Short: "Expire one access request immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			c, err := factory()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.TriggerExpire(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run the expiry sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrigger(cmd, factory, jobs.TaskAccessExpirySweep, 0)
		},
	}
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old idempotency keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrigger(cmd, factory, jobs.TaskIdempotencyCleanup, retentionHours)
		},
	}
	cleanup.Flags().IntVar(&retentionHours, "retention-hours", 24*30, "Keep keys younger than this many hours")
	trigger.AddCommand(expire, sweep, cleanup)
	return trigger
}

func runTrigger(cmd *cobra.Command, factory Factory, name string, retentionHours int) error {
	c, err := factory()
	if err != nil {
		return err
	}
	defer c.Close()
	info, err := c.Trigger(cmd.Context(), name, retentionHours)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func newStatsCmd(factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := factory()
			if err != nil {
				return err
			}
			defer c.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %8s %8s %10s %6s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY")
			for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
				stats, err := c.InspectQueue(queue)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", queue, err)
				}
				fmt.Fprintf(out, "%-10s %8d %8d %10d %6d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			}
			return nil
		},
	}
}

func newScheduledCmd(factory Factory) *cobra.Command {
	var (
		queue string
		size  int
	)
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks such as pending expirations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := factory()
			if err != nil {
				return err
			}
			defer c.Close()
			tasks, err := c.ListScheduled(queue, size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no scheduled tasks")
				return nil
			}
			for _, t := range tasks {
				fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queue, "queue", jobs.QueueCritical, "Queue to list")
	cmd.Flags().IntVar(&size, "size", 20, "Maximum tasks to list")
	return cmd
}
