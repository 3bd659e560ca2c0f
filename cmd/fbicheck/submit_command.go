package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fbicheck/internal/queue"
	"fbicheck/internal/walker"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var recursive bool
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "submit <dir>",
		Short: "Queue a directory for priority reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := walker.ValidateRoot(args[0])
			if err != nil {
				return err
			}

			dirs := []string{root}
			if recursive {
				logger := ctx.commandLogger(cmd)
				w, err := walker.Walk(root, 0, ctx.walkerOptions(logger)...)
				if err != nil {
					return err
				}
				dirs = dirs[:0]
				for entry := range w.All() {
					dirs = append(dirs, entry.Dir)
				}
			}

			out := cmd.OutOrStdout()
			if !assumeYes && len(dirs) > 1 {
				ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Found %s directories. Continue? [y/N] ", humanize.Comma(int64(len(dirs)))))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			return ctx.withQueues(func(queues *queue.Queues) error {
				added, err := queues.For(queue.TierManual).PutMany(cmd.Context(), dirs)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued %s of %s directories (%d already pending)\n",
					humanize.Comma(int64(added)), humanize.Comma(int64(len(dirs))), len(dirs)-added)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Queue every directory below dir as well")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
