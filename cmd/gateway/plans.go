package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/config"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the effective plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			return printPlans(os.Stdout, catalog)
		},
	}
}

func printPlans(out io.Writer, catalog *plans.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tSEARCHES/MO\tEXPORTS/MO\tCOMPANIES/EXPORT\tPROMPT $/MO")
	for _, name := range catalog.Names() {
		l, err := catalog.Limits(name)
		if err != nil {
			return err
		}
		if name == catalog.DefaultPlan() {
			name += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name,
			countLimit(l.SearchesPerMonth), countLimit(l.ExportsPerMonth),
			countLimit(l.CompaniesPerExport), dollarLimit(l.PromptDollars))
	}
	return w.Flush()
}
