package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/seed"
)

func newDemoCommand(rt *session) *cobra.Command {
	var (
		id      int64
		views   int64
		revenue string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through counter updates in the current index mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				st, err := idx.State(ctx)
				if err != nil {
					return err
				}
				p := newPrinter(cmd, formatTable)
				p.title("Index Demo")
				p.line("Index: %s  Mode: %s", idx.Name(), st.Mode)
				if st.Mode == domain.ModeImmediate {
					p.muted("⚡ Changes are reindexed synchronously")
				} else {
					p.muted("⏰ Changes are logged and applied by the scheduled runner")
				}
				p.line("")

				stats := a.Indexer.Stats()
				switch {
				case id != 0 && views > 0:
					row, err := stats.IncrementViews(ctx, idx.Name(), id, views)
					if stale := staleError(err); stale != nil {
						p.warn("Source updated but index refresh failed: %s", stale.Message)
						return nil
					}
					if err != nil {
						return err
					}
					p.success("Incremented %d views for product %d (now %d)", views, id, row.Counters.ViewCount)
				case id != 0 && revenue != "":
					amount, err := decimal.NewFromString(revenue)
					if err != nil {
						return fmt.Errorf("invalid --revenue %q: %w", revenue, err)
					}
					row, err := stats.RecordPurchase(ctx, idx.Name(), id, amount)
					if stale := staleError(err); stale != nil {
						p.warn("Source updated but index refresh failed: %s", stale.Message)
						return nil
					}
					if err != nil {
						return err
					}
					p.success("Recorded purchase of %s for product %d (%d purchases)", money(amount), id, row.Counters.PurchaseCount)
				default:
					updates := []domain.RowUpdate{
						{NaturalID: 1, Deltas: domain.Deltas{ViewCount: 10}},
						{NaturalID: 2, Deltas: domain.Deltas{ViewCount: 20}},
						{NaturalID: 3, Deltas: domain.Deltas{ViewCount: 30}},
					}
					applied, err := stats.ApplyBatch(ctx, idx.Name(), updates, false)
					if stale := staleError(err); stale != nil {
						p.warn("Source updated but index refresh failed: %s", stale.Message)
						return nil
					}
					if err != nil {
						return err
					}
					p.success("Batch updated %d of %d products", applied, len(updates))
					if applied < len(updates) {
						p.muted("Run 'statsctl generate-data --samples' to create products 1, 2 and 3.")
					}
					p.line("")
					p.line("Examples:")
					p.line("  statsctl demo --id 1 --views 100")
					p.line("  statsctl demo --id 1 --revenue 250.50")
				}

				if st.Mode == domain.ModeScheduled {
					p.muted("Pending changes are applied on the next runner tick, or now with 'statsctl drain'.")
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64VarP(&id, "id", "p", 0, "product natural id")
	cmd.Flags().Int64Var(&views, "views", 0, "views to add to --id")
	cmd.Flags().StringVarP(&revenue, "revenue", "r", "", "record one purchase of this amount for --id")
	return cmd
}

func newGenerateDataCommand(rt *session) *cobra.Command {
	var (
		samples bool
		notify  bool
	)
	cmd := &cobra.Command{
		Use:   "generate-data [count]",
		Short: "Fill the source table with random rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := seed.DefaultCount
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("count must be a positive integer: %q", args[0])
				}
				count = n
			}
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				p := newPrinter(cmd, formatTable)
				src := idx.Stores().Source

				var ids []int64
				if samples {
					ids, err = seed.InsertSamples(ctx, src)
					if err != nil {
						return err
					}
					p.success("Inserted %d sample products", len(ids))
				} else {
					p.line("Generating %d products...", count)
					ids, err = seed.Generate(ctx, src, seed.Options{
						Count: count,
						Progress: func(done, total int) {
							p.muted("  inserted %d/%d", done, total)
						},
					})
					if err != nil {
						return err
					}
					p.success("Generated %d products in %s", len(ids), idx.Tables().Source)
				}

				if notify {
					if err := idx.Processor().NotifyRowsChanged(ctx, ids, false); err != nil {
						if stale := staleError(err); stale != nil {
							p.warn("Index refresh failed: %s", stale.Message)
							return nil
						}
						return err
					}
					p.success("Notified index %s of %d rows", idx.Name(), len(ids))
					return nil
				}
				p.line("")
				p.line("Next steps:")
				p.line("  statsctl reindex      # build the index")
				p.line("  statsctl show-stats   # inspect it")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&samples, "samples", false, "insert the three fixed sample products instead")
	cmd.Flags().BoolVar(&notify, "notify", false, "route the new rows through the index mode")
	return cmd
}
