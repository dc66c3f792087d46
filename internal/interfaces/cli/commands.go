package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
)

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func newStatusCommand(opts *RootOptions, connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the reconciliation backlog",
		Long: `Count tourists, active identities and identities with unresolved work items.

Exits 1 while any work item is unresolved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := formatter(cmd, opts)
			return withOperations(cmd, opts, connect, func(ctx context.Context, ops Operations) error {
				page, err := ops.List(ctx, operator, shared.Filter{Page: 1, PageSize: 1})
				if err != nil {
					return WrapExitError(ExitCommandError, "status", err)
				}
				sum := page.Summary
				render := func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintf(tw, "tourists\t%d\n", sum.Total)
					fmt.Fprintf(tw, "active\t%d\n", sum.Active)
					fmt.Fprintf(tw, "with panics\t%d\n", sum.WithPanics)
					fmt.Fprintf(tw, "unresolved\t%d\n", sum.Unresolved)
					_ = tw.Flush()
				}
				if sum.Unresolved > 0 {
					if out.Format != "json" {
						render(out.Writer)
					}
					return out.Fail(sum, NewExitError(ExitFailure, fmt.Sprintf("%d tourist(s) with unresolved work", sum.Unresolved)))
				}
				return out.Result(sum, render)
			})
		},
	}
}

func newDiagnoseCommand(opts *RootOptions, connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check ledger connectivity, operator balance, role and fees",
		Long: `Run the same ledger checks the worker runs at startup.

Exits 1 when any check produced a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := formatter(cmd, opts)
			return withOperations(cmd, opts, connect, func(ctx context.Context, ops Operations) error {
				d, err := ops.Diagnose(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "diagnose", err)
				}
				if !d.Healthy() {
					if out.Format != "json" {
						renderDiagnostics(out.Writer, d)
					}
					return out.Fail(d, NewExitError(ExitFailure, fmt.Sprintf("%d check(s) failed", len(d.Warnings))))
				}
				return out.Result(d, func(w io.Writer) { renderDiagnostics(w, d) })
			})
		},
	}
}

func renderDiagnostics(w io.Writer, d onchain.Diagnostics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "network\t%s (chain %d)\n", d.Network.Name, d.Network.ChainID)
	fmt.Fprintf(tw, "balance\t%s\n", d.Balance)
	fmt.Fprintf(tw, "operator role\t%t\n", d.OperatorRole)
	fmt.Fprintf(tw, "base fee\t%s gwei\n", d.Fee.BaseFeeGwei)
	fmt.Fprintf(tw, "priority fee\t%s gwei\n", d.Fee.PriorityFeeGwei)
	_ = tw.Flush()
	for _, warning := range d.Warnings {
		fmt.Fprintf(w, "WARN %s\n", warning)
	}
}

func newPassCommand(opts *RootOptions, connect Connector) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass against the database and ledger.

Stop the server's worker first: passes from two processes are not
coordinated and may submit the same work item twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := formatter(cmd, opts)
			return withOperations(cmd, opts, connect, func(ctx context.Context, ops Operations) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				out.VerboseLog("running reconciliation pass")
				res, err := ops.RunWorkerPass(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "pass", err)
				}
				return out.Result(res, func(w io.Writer) {
					if res.Skipped {
						fmt.Fprintln(w, "skipped: a pass is already running")
						return
					}
					fmt.Fprintf(w, "entities=%d submitted=%d confirmed=%d failed=%d halted=%d duration=%s\n",
						res.Entities, res.Submitted, res.Confirmed, res.Failed, res.Halted, res.Duration)
				})
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "abort the pass after this long (0 for no limit)")
	return cmd
}

func newItemsCommand(opts *RootOptions, connect Connector) *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "items <tourist-id>",
		Short: "List a tourist's work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			touristID, err := parseID("tourist id", args[0])
			if err != nil {
				return err
			}
			out := formatter(cmd, opts)
			return withOperations(cmd, opts, connect, func(ctx context.Context, ops Operations) error {
				t, err := ops.Get(ctx, operator, touristID, false)
				if err != nil {
					return WrapExitError(ExitFailure, "get tourist", err)
				}
				items := t.WorkItems
				if failedOnly {
					items = filterFailed(items)
				}
				return out.Result(items, func(w io.Writer) {
					fmt.Fprintf(w, "%s  %s  onchain=%s\n", t.ID, t.ChainID, t.OnchainStatus)
					renderItems(w, items)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only show failed items")
	return cmd
}

func filterFailed(items []touristapp.WorkItemResponse) []touristapp.WorkItemResponse {
	var failed []touristapp.WorkItemResponse
	for _, it := range items {
		if it.Status == string(tourist.StatusFailed) {
			failed = append(failed, it)
		}
	}
	return failed
}

func renderItems(w io.Writer, items []touristapp.WorkItemResponse) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no work items")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTION\tSTATUS\tHANDLE\tERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Action, it.Status, it.LedgerHandle, oneLine(it.Error))
	}
	_ = tw.Flush()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

func newRetryCommand(opts *RootOptions, connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <tourist-id> <item-id>",
		Short: "Queue a fresh copy of a failed work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			touristID, err := parseID("tourist id", args[0])
			if err != nil {
				return err
			}
			itemID, err := parseID("item id", args[1])
			if err != nil {
				return err
			}
			out := formatter(cmd, opts)
			return withOperations(cmd, opts, connect, func(ctx context.Context, ops Operations) error {
				item, err := ops.RetryFailed(ctx, operator, touristID, itemID)
				if err != nil {
					return WrapExitError(ExitFailure, "retry", err)
				}
				return out.Result(item, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s requeued as %s (%s)\n", item.Action, itemID, item.ID, item.Status)
				})
			})
		},
	}
}
