package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fbicheck/internal/events"
	"fbicheck/internal/reconcile"
	"fbicheck/internal/walker"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var routingKey string

	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Reconcile one directory against the index now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := walker.ValidateRoot(args[0])
			if err != nil {
				return err
			}
			logger := ctx.commandLogger(cmd)

			querier, err := newIndexClient(cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pub, err := openPublisher(cfg, dryRun, out, logger)
			if err != nil {
				return err
			}
			defer pub.Close()

			if !cmd.Flags().Changed("routing-key") {
				routingKey = cfg.Broker.RoutingKey
			}
			reconciler := reconcile.New(querier, pub,
				reconcile.WithRoutingKey(routingKey),
				reconcile.WithWalkerOptions(ctx.walkerOptions(logger)...),
				reconcile.WithLogger(logger),
			)
			summary, err := reconciler.Reconcile(cmd.Context(), dir)
			if err != nil {
				return err
			}

			if summary.Unlisted {
				fmt.Fprintf(out, "%s could not be listed; nothing published\n", dir)
				return nil
			}
			rows := make([][]string, 0, len(events.Actions()))
			for _, action := range events.Actions() {
				if n := summary.Counts[action]; n > 0 {
					rows = append(rows, []string{string(action), strconv.Itoa(n)})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintf(out, "%s is consistent with the index\n", dir)
				return nil
			}
			fmt.Fprint(out, renderTable([]string{"Action", "Events"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print events instead of publishing them")
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "Override broker.routing_key")
	return cmd
}
