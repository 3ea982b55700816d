package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ricirt/plinko-sync/internal/bootstrap"
	"github.com/ricirt/plinko-sync/internal/config"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/worker"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the configured remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(true, func(cfg *config.Config, q *queue.Queue) error {
				remote, err := bootstrap.OpenRemote(cmd.Context(), cfg, ctx.logger)
				if err != nil {
					return err
				}
				defer remote.Close()

				var lost []worker.LostMutation
				driver := worker.NewSyncDriver(q, remote.Gateway, cfg.SyncMaxAttempts, ctx.logger,
					worker.SyncHooks{OnLost: func(l worker.LostMutation) { lost = append(lost, l) }})

				res, err := driver.Cycle(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, res)
				}

				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Result", "Count"}, [][]string{
					{"drained", strconv.Itoa(res.Drained)},
					{"applied", strconv.Itoa(res.Applied)},
					{"requeued", strconv.Itoa(res.Requeued)},
					{"deferred", strconv.Itoa(res.Deferred)},
					{"lost", strconv.Itoa(res.Lost)},
				}, []columnAlignment{alignLeft, alignRight}))

				for _, l := range lost {
					fmt.Fprintf(cmd.ErrOrStderr(), "lost %s %s (%s): %v\n", l.Item.Op, l.Item.RowKey(), l.Reason, l.Err)
				}
				return nil
			})
		},
	}
}
