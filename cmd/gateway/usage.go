package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
)

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect metered usage",
	}
	cmd.AddCommand(newUsageStatusCmd())
	return cmd
}

func newUsageStatusCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's usage in the current billing period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := e.accountant.Status(ctx, userID)
			if err != nil {
				return err
			}
			printStatus(os.Stdout, st, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func printStatus(out io.Writer, st usage.Status, now time.Time) {
	plan := st.Plan
	if plan == "" {
		plan = "(default)"
	}
	fmt.Fprintf(out, "User:   %s\n", st.UserID)
	fmt.Fprintf(out, "Plan:   %s\n", plan)
	fmt.Fprintf(out, "Period: %s to %s (resets %s)\n\n",
		st.PeriodStart.Format(time.DateOnly), st.PeriodEnd.Format(time.DateOnly), humanize.RelTime(st.PeriodEnd, now, "ago", "from now"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METER\tUSED\tLIMIT\tREMAINING")
	fmt.Fprintf(w, "searches\t%s\t%s\t%s\n", humanize.Comma(st.Counters.Searches), countLimit(st.Limits.SearchesPerMonth), countRemaining(st.SearchesRemaining))
	fmt.Fprintf(w, "exports\t%s\t%s\t%s\n", humanize.Comma(st.Counters.Exports), countLimit(st.Limits.ExportsPerMonth), countRemaining(st.ExportsRemaining))
	fmt.Fprintf(w, "prompt dollars\t%s\t%s\t%s\n", dollars(st.Counters.PromptDollars), dollarLimit(st.Limits.PromptDollars), dollarRemaining(st.DollarsRemaining))
	fmt.Fprintf(w, "input tokens\t%s\t-\t-\n", humanize.Comma(st.Counters.PromptInputTokens))
	fmt.Fprintf(w, "output tokens\t%s\t-\t-\n", humanize.Comma(st.Counters.PromptOutputTokens))
	w.Flush()
}

func countLimit(v int64) string {
	if plans.IsUnlimited(v) {
		return "unlimited"
	}
	return humanize.Comma(v)
}

func countRemaining(v *int64) string {
	if v == nil {
		return "unlimited"
	}
	return humanize.Comma(*v)
}

func dollars(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 4)
}

func dollarLimit(v float64) string {
	if plans.IsUnlimited(v) {
		return "unlimited"
	}
	return dollars(v)
}

func dollarRemaining(v *float64) string {
	if v == nil {
		return "unlimited"
	}
	return dollars(*v)
}
