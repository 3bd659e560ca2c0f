package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fbicheck/internal/spot"
)

func newSpotCommand(ctx *commandContext) *cobra.Command {
	spotCmd := &cobra.Command{
		Use:   "spot",
		Short: "Inspect the catalog crawl position",
	}

	spotCmd.AddCommand(newSpotStatusCommand(ctx))
	spotCmd.AddCommand(newSpotResetCommand(ctx))

	return spotCmd
}

func (c *commandContext) spotTracker() (*spot.Tracker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return spot.NewTracker(cfg.SpotCatalogPath(), cfg.SpotProgressPath(), nil, nil), nil
}

func newSpotStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cursor and cached catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.spotTracker()
			if err != nil {
				return err
			}
			status, err := tracker.Status()
			if err != nil {
				return err
			}
			catalog := "not downloaded yet"
			if status.CatalogExists {
				catalog = fmt.Sprintf("%s lines, fetched %s",
					humanize.Comma(int64(status.CatalogLines)), humanize.Time(status.CatalogModTime))
			}
			fmt.Fprint(cmd.OutOrStdout(), renderFields([][2]string{
				{"Cursor", fmt.Sprintf("%d", status.Cursor)},
				{"Catalog", catalog},
				{"Catalog file", status.CatalogPath},
				{"Cursor file", status.CursorPath},
			}))
			return nil
		},
	}
}

func newSpotResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart crawling from the first catalog spot",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.spotTracker()
			if err != nil {
				return err
			}
			if err := tracker.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Spot cursor reset to 0")
			return nil
		},
	}
}
