package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fbicheck/internal/rescan"
)

func newRescanCommand(ctx *commandContext) *cobra.Command {
	var opts rescan.Options
	var dryRun bool
	var routingKey string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "rescan <dir>",
		Short: "Announce every matching file below a directory as a deposit",
		Long: "Publish DEPOSIT (SYMLINK for links) for each non-hidden file under dir so the\n" +
			"indexers re-read it. Only the top level is scanned unless -r is given.\n" +
			"With --datasets-json, dir holds JSON manifests whose \"datasets\" lists name\n" +
			"the directories to scan in full.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.commandLogger(cmd)
			opts.WalkerOptions = ctx.walkerOptions(logger)
			opts.Logger = logger

			paths, err := rescan.Collect(args[0], opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputPath != "" {
				content := strings.Join(paths, "\n")
				if content != "" {
					content += "\n"
				}
				if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
					return fmt.Errorf("write file list: %w", err)
				}
			}

			pub, err := openPublisher(cfg, dryRun, out, logger)
			if err != nil {
				return err
			}
			defer pub.Close()

			if !cmd.Flags().Changed("routing-key") {
				routingKey = cfg.Broker.RoutingKey
			}
			summary, err := rescan.Publish(cmd.Context(), pub, paths, routingKey, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Submitted %s files (%s deposits, %s symlinks)\n",
				humanize.Comma(int64(summary.Deposits+summary.Symlinks)),
				humanize.Comma(int64(summary.Deposits)),
				humanize.Comma(int64(summary.Symlinks)),
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "Descend into every subdirectory")
	cmd.Flags().StringVar(&opts.Extension, "extension", "", "Only files with this extension, e.g. nc")
	cmd.Flags().StringVar(&opts.FileRegex, "file-regex", "", "Only files whose name matches this regular expression")
	cmd.Flags().BoolVar(&opts.DatasetsJSON, "datasets-json", false, "Read dataset directories from the JSON manifests under dir")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print events instead of publishing them")
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "Override broker.routing_key")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the matched file list to this path")
	return cmd
}
