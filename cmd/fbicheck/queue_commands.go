package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fbicheck/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queues",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and in-flight counts per tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueues(func(queues *queue.Queues) error {
				rows := make([][]string, 0, 2)
				for _, tier := range queue.Tiers() {
					stats, err := queues.For(tier).Stats(cmd.Context())
					if err != nil {
						return err
					}
					oldest := "-"
					if !stats.Oldest.IsZero() {
						oldest = humanize.Time(stats.Oldest)
					}
					rows = append(rows, []string{
						tier.String(),
						humanize.Comma(int64(stats.Pending)),
						humanize.Comma(int64(stats.InFlight)),
						oldest,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Tier", "Pending", "In flight", "Oldest"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var tierFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued directories in delivery order",
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := selectTiers(tierFlag)
			if err != nil {
				return err
			}
			return ctx.withQueues(func(queues *queue.Queues) error {
				var rows [][]string
				for _, tier := range tiers {
					tasks, err := queues.For(tier).List(cmd.Context(), limit)
					if err != nil {
						return err
					}
					for _, task := range tasks {
						rows = append(rows, []string{
							strconv.FormatInt(task.ID, 10),
							tier.String(),
							string(task.Status),
							strconv.Itoa(task.Attempts),
							humanize.Time(task.CreatedAt),
							task.Path,
						})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Tier", "Status", "Attempts", "Queued", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tierFlag, "tier", "t", "all", "Tier to list: manual, crawler, or all")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum tasks per tier (0 for all)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var tierFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued directory from a tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := selectTiers(tierFlag)
			if err != nil {
				return err
			}
			return ctx.withQueues(func(queues *queue.Queues) error {
				out := cmd.OutOrStdout()
				for _, tier := range tiers {
					removed, err := queues.For(tier).Clear(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %s %s tasks\n", humanize.Comma(removed), tier)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tierFlag, "tier", "t", "all", "Tier to clear: manual, crawler, or all")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueues(func(queues *queue.Queues) error {
				out := cmd.OutOrStdout()
				var problems []string
				for _, tier := range queue.Tiers() {
					health, err := queues.For(tier).CheckHealth(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s (%s)\n", tier, health.DBPath)
					fmt.Fprint(out, renderFields([][2]string{
						{"Schema version", strconv.Itoa(health.SchemaVersion)},
						{"Tasks table", yesNo(health.TableExists)},
						{"Integrity check", yesNo(health.IntegrityCheck)},
						{"Tasks", humanize.Comma(int64(health.TotalTasks))},
					}))
					if !health.IntegrityCheck || len(health.MissingColumns) > 0 {
						problems = append(problems, tier.String())
					}
				}
				if len(problems) > 0 {
					return fmt.Errorf("queue database problems in: %s", strings.Join(problems, ", "))
				}
				return nil
			})
		},
	}
}

func selectTiers(value string) ([]queue.Tier, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "all") {
		return queue.Tiers(), nil
	}
	tier, err := queue.ParseTier(value)
	if err != nil {
		return nil, err
	}
	return []queue.Tier{tier}, nil
}
