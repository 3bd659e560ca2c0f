package main

import (
	"github.com/spf13/cobra"

	"fbicheck/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var dev bool
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the reconciliation daemon in the foreground",
		Long: "Drain the manual queue first, then the crawler queue, reconciling each directory\n" +
			"against the index and publishing change events. When both queues are empty the\n" +
			"next catalog spot is walked and its directories queued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
				Dev:         dev,
			})
		},
	}

	cmd.Flags().BoolVar(&dev, "dev", false, "Process only manually submitted directories; never crawl spots")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	return cmd
}
