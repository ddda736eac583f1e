package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"debtbook/internal/backend"
	"debtbook/internal/log"
	"debtbook/internal/worker"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Show who owes what"}

	cmd.AddCommand(&cobra.Command{
		Use:   "admins",
		Short: "Total debt per admin, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			totals, err := a.svc.TotalsByAdmin(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADMIN\tTOTAL")
			for t := range totals {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Total)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "products",
		Short: "Quantity and amount owed per product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			totals, err := a.svc.TotalsByProduct(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tQUANTITY\tTOTAL")
			for t := range totals {
				fmt.Fprintf(w, "%s\t%d\t%s\n", t.Name, t.Quantity, t.Total)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "detail",
		Short: "Each admin's debt broken down by product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			details, err := a.svc.DetailByAdmin(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for d := range details {
				fmt.Fprintf(w, "%s\t\t%s\n", d.Name, d.Total)
				for _, l := range d.Lines {
					fmt.Fprintf(w, "  %s\t%d\t%s\n", l.Name, l.Quantity, l.Amount)
				}
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "total",
		Short: "Sum of all outstanding debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			total, err := a.svc.GrandTotal(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), total)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write a report snapshot to the configured REPORT_BACKEND",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sinkCfg, err := backend.FromAppConfig(a.cfg)
			if err != nil {
				return err
			}
			sink, err := backend.NewFactory(a.logger.WithComponent(log.ComponentBackend).Slog()).CreateSink(ctx, sinkCfg)
			if err != nil {
				return err
			}
			if sink.Cleanup != nil {
				defer sink.Cleanup()
			}

			ref, err := worker.NewReportSyncer(a.svc, sink.Writer, 0, a.logger).Sync(ctx, worker.TriggerManual)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", ref)
			return nil
		},
	})

	return cmd
}
