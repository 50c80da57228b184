package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/service"
)

// statsReport is the structured form of show-stats.
type statsReport struct {
	Index       string               `json:"index" yaml:"index"`
	SourceCount int64                `json:"source_count" yaml:"source_count"`
	IndexCount  int64                `json:"index_count" yaml:"index_count"`
	Rows        []domain.IndexRow    `json:"rows" yaml:"rows"`
	Summary     []domain.TierSummary `json:"summary" yaml:"summary"`
}

func parseTierFlag(raw string) (*domain.Tier, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseTier(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func newShowStatsCommand(rt *session) *cobra.Command {
	var (
		limit int
		tier  string
	)
	cmd := &cobra.Command{
		Use:   "show-stats",
		Short: "Show indexed rows by conversion rate and a summary per tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tierFilter, err := parseTierFlag(tier)
			if err != nil {
				return err
			}
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				status, err := a.Admin.Status(ctx, idx.Name())
				if err != nil {
					return err
				}
				report := statsReport{Index: idx.Name(), SourceCount: status.SourceCount, IndexCount: status.IndexCount}
				if status.IndexCount > 0 {
					if report.Rows, err = a.Indexer.Query().List(ctx, idx.Name(), tierFilter, limit); err != nil {
						return err
					}
					if report.Summary, err = a.Indexer.Query().SummaryByTier(ctx, idx.Name()); err != nil {
						return err
					}
				}

				p := newPrinter(cmd, rt.opts.Output)
				return p.emit(report, func() {
					p.title("Indexer Statistics")
					p.line("Source table records:  %d", report.SourceCount)
					p.line("Indexed table records: %d", report.IndexCount)
					p.line("")
					if report.IndexCount == 0 {
						p.warn("Index table is empty. Run: statsctl reindex --index %s", idx.Name())
						return
					}
					if len(report.Rows) == 0 {
						p.muted("No data found")
						return
					}
					p.table(indexRowHeaders, indexRowCells(report.Rows))
					p.line("")
					p.title("Summary by Popularity Tier")
					rows := make([][]string, len(report.Summary))
					for i, s := range report.Summary {
						rows[i] = []string{
							string(s.Tier),
							fmt.Sprint(s.Count),
							s.AvgConversion.StringFixed(2) + "%",
							money(s.TotalRevenue),
						}
					}
					p.table([]string{"Tier", "Products", "Avg Conv. Rate", "Total Revenue"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", service.DefaultListLimit, "number of rows to show")
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "filter by popularity tier (high|medium|low)")
	return cmd
}

func newTopCommand(rt *session) *cobra.Command {
	var (
		limit int
		tier  string
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most viewed rows of a popularity tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				rows, err := a.Indexer.Query().TopByTier(cmd.Context(), idx.Name(), t, limit)
				if err != nil {
					return err
				}
				return printRows(cmd, rt, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", service.DefaultTopLimit, "number of rows to show")
	cmd.Flags().StringVarP(&tier, "tier", "t", string(domain.TierHigh), "popularity tier (high|medium|low)")
	return cmd
}

func newTopConvertersCommand(rt *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top-converters",
		Short: "Show the rows with the highest conversion rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				rows, err := a.Indexer.Query().TopByConversion(cmd.Context(), idx.Name(), limit)
				if err != nil {
					return err
				}
				return printRows(cmd, rt, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", service.DefaultTopLimit, "number of rows to show")
	return cmd
}

func newGetCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <natural-id>",
		Short: "Show the index row of one natural id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("natural id must be an integer: %q", args[0])
			}
			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				row, err := a.Indexer.Query().Get(cmd.Context(), idx.Name(), id)
				if err != nil {
					return err
				}
				p := newPrinter(cmd, rt.opts.Output)
				return p.emit(row, func() {
					p.table(indexRowHeaders, indexRowCells([]domain.IndexRow{row}))
				})
			})
		},
	}
}

func printRows(cmd *cobra.Command, rt *session, rows []domain.IndexRow) error {
	p := newPrinter(cmd, rt.opts.Output)
	return p.emit(rows, func() {
		if len(rows) == 0 {
			p.muted("No data found")
			return
		}
		p.table(indexRowHeaders, indexRowCells(rows))
	})
}

func newIncrementCommand(rt *session) *cobra.Command {
	var (
		views, purchases int64
		revenue          string
	)
	cmd := &cobra.Command{
		Use:   "increment <natural-id>",
		Short: "Add to the counters of one source row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("natural id must be an integer: %q", args[0])
			}
			raw := map[string]decimal.Decimal{}
			if views != 0 {
				raw[domain.CounterViewCount] = decimal.NewFromInt(views)
			}
			if purchases != 0 {
				raw[domain.CounterPurchaseCount] = decimal.NewFromInt(purchases)
			}
			if revenue != "" {
				d, err := decimal.NewFromString(revenue)
				if err != nil {
					return fmt.Errorf("invalid --revenue %q: %w", revenue, err)
				}
				raw[domain.CounterRevenue] = d
			}
			deltas, err := domain.ParseDeltas(raw)
			if err != nil {
				return err
			}

			return rt.with(cmd, func(a *app.Application) error {
				idx, err := rt.index(a)
				if err != nil {
					return err
				}
				row, err := a.Indexer.Stats().IncrementCounters(cmd.Context(), idx.Name(), id, deltas)
				p := newPrinter(cmd, rt.opts.Output)
				if stale := staleError(err); stale != nil {
					p.warn("Source updated but index refresh failed: %s", stale.Message)
					return p.emit(row, func() {})
				}
				if err != nil {
					return err
				}
				return p.emit(row, func() {
					p.success("Row %d updated: views=%d purchases=%d revenue=%s",
						row.NaturalID, row.Counters.ViewCount, row.Counters.PurchaseCount, money(row.Counters.Revenue))
				})
			})
		},
	}
	cmd.Flags().Int64Var(&views, "views", 0, "views to add")
	cmd.Flags().Int64Var(&purchases, "purchases", 0, "purchases to add")
	cmd.Flags().StringVar(&revenue, "revenue", "", "revenue to add, e.g. 250.50")
	return cmd
}

func staleError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeIndexStale {
		return appErr
	}
	return nil
}
