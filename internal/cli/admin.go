package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/governance/audit"
)

// cliActor is the audit actor of statsctl commands.
const cliActor = "statsctl"

var statusHeaders = []string{"Index", "Mode", "Health", "Status", "Source", "Indexed", "Pending", "Built At", "Last Drain"}

func newStatusCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show mode, health and row counts of indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				ctx := cmd.Context()
				var reports []domain.IndexStatusReport
				if rt.opts.Index != "" {
					r, err := a.Admin.Status(ctx, rt.opts.Index)
					if err != nil {
						return err
					}
					reports = []domain.IndexStatusReport{r}
				} else {
					all, err := a.Admin.StatusAll(ctx)
					if err != nil {
						return err
					}
					reports = all
				}

				p := newPrinter(cmd, rt.opts.Output)
				return p.emit(reports, func() {
					rows := make([][]string, len(reports))
					for i, r := range reports {
						rows[i] = []string{
							r.Index,
							string(r.Mode),
							string(r.Health),
							string(r.Status),
							fmt.Sprint(r.SourceCount),
							fmt.Sprint(r.IndexCount),
							fmt.Sprint(r.PendingCount),
							timestamp(r.BuiltAt),
							timestamp(r.LastDrainAt),
						}
					}
					p.table(statusHeaders, rows)
				})
			})
		},
	}
}

func newSetModeCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:       "set-mode <immediate|scheduled>",
		Short:     "Persist the update mode of an index",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.ModeImmediate), string(domain.ModeScheduled)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				mode, err := a.Admin.SetMode(cmd.Context(), idx.Name(), args[0])
				if err != nil {
					return err
				}
				a.Audit.LogAction(cmd.Context(), audit.ActionSetMode, idx.Name(), cliActor, map[string]interface{}{"mode": string(mode)})
				p := newPrinter(cmd, rt.opts.Output)
				return p.emit(map[string]string{"index": idx.Name(), "mode": string(mode)}, func() {
					p.success("Index %s mode set to %s", idx.Name(), mode)
					if mode == domain.ModeScheduled {
						p.muted("Changes are now logged to the changelog and applied by the scheduled runner.")
					}
				})
			})
		},
	}
}

func newReindexCommand(rt *session) *cobra.Command {
	var (
		ids   []int64
		force bool
		async bool
	)
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild an index, or reindex selected natural ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				start := time.Now()
				if async && a.DB == nil {
					// The pool dispatcher would be shut down with this process.
					newPrinter(cmd, rt.opts.Output).warn("--async needs postgres storage; rebuilding in this process")
					async = false
				}
				if len(ids) == 0 {
					res, err := a.Admin.TriggerFullReindex(cmd.Context(), idx.Name(), async)
					if err != nil {
						return err
					}
					a.Audit.LogAction(cmd.Context(), audit.ActionFullReindex, idx.Name(), cliActor, map[string]interface{}{"rows": res.Rows, "queued": res.Queued})
					p := newPrinter(cmd, rt.opts.Output)
					return p.emit(res, func() {
						if res.Queued {
							p.success("Full reindex of %s queued (job %s)", res.Index, res.JobID)
							return
						}
						p.success("Full reindex of %s completed: %d rows in %s", res.Index, res.Rows, time.Since(start).Round(time.Millisecond))
					})
				}

				res, err := a.Admin.TriggerPartialReindex(cmd.Context(), idx.Name(), ids, force)
				p := newPrinter(cmd, rt.opts.Output)
				if staleError(err) != nil {
					p.warn("Index refresh failed; ids were queued for the scheduled runner")
					return p.emit(res, func() {})
				}
				if err != nil {
					return err
				}
				a.Audit.LogAction(cmd.Context(), audit.ActionPartialReindex, idx.Name(), cliActor, map[string]interface{}{"requested": res.Requested, "rows": res.Rows})
				return p.emit(res, func() {
					switch {
					case res.Queued:
						p.success("%d ids of %s logged to the changelog", res.Requested, res.Index)
					case force:
						p.success("Reindexed %d of %d requested rows of %s", res.Rows, res.Requested, res.Index)
					default:
						p.success("Reindexed %d ids of %s", res.Requested, res.Index)
					}
				})
			})
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "natural ids to reindex (comma separated); omit for a full rebuild")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "reindex ids now regardless of mode")
	cmd.Flags().BoolVar(&async, "async", false, "queue the full rebuild instead of running it in this process")
	return cmd
}

func newDrainCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Apply pending changelog entries now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				res, err := a.Admin.Drain(cmd.Context(), idx.Name())
				if err != nil {
					return err
				}
				a.Audit.LogAction(cmd.Context(), audit.ActionDrain, idx.Name(), cliActor, map[string]interface{}{"reindexed": res.Reindexed})
				p := newPrinter(cmd, rt.opts.Output)
				return p.emit(res, func() {
					p.success("Drained %s: %d claimed, %d reindexed, %d requeued in %d batches",
						res.Index, res.Claimed, res.Reindexed, res.Requeued, res.Batches)
				})
			})
		},
	}
}

func newClearDataCommand(rt *session) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear-data",
		Short: "Delete all source, index and changelog rows of an index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				p := newPrinter(cmd, formatTable)
				if !force {
					p.warn("This will delete ALL data of index %s.", idx.Name())
					_, _ = fmt.Fprint(cmd.OutOrStdout(), "Continue? [y/N]: ")
					answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					switch strings.ToLower(strings.TrimSpace(answer)) {
					case "y", "yes":
					default:
						p.muted("Aborted.")
						return nil
					}
				}
				if err := a.Admin.ClearAll(cmd.Context(), idx.Name(), true); err != nil {
					return err
				}
				a.Audit.LogAction(cmd.Context(), audit.ActionClear, idx.Name(), cliActor, nil)
				p.success("All data of %s cleared", idx.Name())
				p.muted("Run 'statsctl generate-data' and 'statsctl reindex' to start over.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}
