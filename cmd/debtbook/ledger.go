package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"debtbook/internal/core"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.svc.EnsureSchema(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema version %d\n", res.Migration.Version)
			for _, obj := range res.Created {
				fmt.Fprintf(out, "created %s\n", obj)
			}
			if !res.Changed() {
				fmt.Fprintln(out, "schema up to date")
			}
			return nil
		},
	}
}

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Manage admins"}

	cmd.AddCommand(&cobra.Command{
		Use:   "register ID NAME",
		Short: "Register an admin or rename an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			admin, err := a.svc.RegisterAdmin(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %d registered as %s\n", admin.ID, admin.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List admins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admins, err := a.svc.ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tNICKNAME")
			for _, admin := range admins {
				fmt.Fprintf(w, "%d\t%s\t%s\n", admin.ID, admin.Name, admin.Nickname)
			}
			return w.Flush()
		},
	})

	return cmd
}

func newNicknameCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "nickname", Short: "Manage the names shown in reports"}

	cmd.AddCommand(&cobra.Command{
		Use:   "set ADMIN_ID NICKNAME",
		Short: "Set an admin's nickname",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.SetNickname(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nickname of admin %d set\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get ADMIN_ID",
		Short: "Show an admin's nickname",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			nick, ok, err := a.svc.GetNickname(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %d has no nickname\n", id)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), nick)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear ADMIN_ID",
		Short: "Remove an admin's nickname",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.ClearNickname(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nickname of admin %d cleared\n", id)
			return nil
		},
	})

	return cmd
}

func newProductCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "product", Short: "Manage the product catalog"}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME PRICE",
		Short: "Add a product priced in major units, e.g. 70 or 12.50",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}
			id, err := a.svc.AddProduct(cmd.Context(), args[0], price)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d added\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "price PRODUCT PRICE",
		Short: "Change a product's price; recorded debts keep their amounts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.findProduct(cmd, args[0])
			if err != nil {
				return err
			}
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}
			p, err = a.svc.UpdateProductPrice(cmd.Context(), p.ID, price)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now costs %s\n", p.Name, p.Price)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete PRODUCT",
		Short: "Delete a product no debt refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.findProduct(cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteProduct(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %s deleted\n", p.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := a.svc.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE")
			for _, p := range products {
				fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, p.Price)
			}
			return w.Flush()
		},
	})

	return cmd
}

func newDebtCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "debt", Short: "Record and settle debts"}

	cmd.AddCommand(&cobra.Command{
		Use:   "record ADMIN_ID PRODUCT QUANTITY",
		Short: "Record that an admin took a product",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			p, err := a.findProduct(cmd, args[1])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[2], core.ErrInvalidQuantity)
			}
			lineID, err := a.svc.RecordDebt(cmd.Context(), id, p.ID, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "debt line %d recorded\n", lineID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list ADMIN_ID",
		Short: "List an admin's debt lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			lines, err := a.svc.ListDebtLines(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRODUCT\tQUANTITY\tAMOUNT")
			for _, l := range lines {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", l.ID, l.ProductID, l.Quantity, l.Amount)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "settle ADMIN_ID",
		Short: "Clear all of an admin's debts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAdminID(args[0])
			if err != nil {
				return err
			}
			s, err := a.svc.SettleAdmin(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settled %d lines, %s\n", s.Lines, s.Total)
			return nil
		},
	})

	return cmd
}

// findProduct accepts a product name or, failing that, a numeric ID.
func (a *app) findProduct(cmd *cobra.Command, arg string) (core.Product, error) {
	p, err := a.svc.GetProductByName(cmd.Context(), arg)
	if err == nil || !errors.Is(err, core.ErrNotFound) {
		return p, err
	}
	id, convErr := strconv.ParseInt(arg, 10, 64)
	if convErr != nil {
		return core.Product{}, err
	}
	return a.svc.GetProduct(cmd.Context(), core.ProductID(id))
}

func parseAdminID(s string) (core.AdminID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("admin id %q: not a number", s)
	}
	return core.AdminID(id), nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %q: %w", s, core.ErrInvalidPrice)
	}
	return d, nil
}
