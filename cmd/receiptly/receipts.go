package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/receiptly/receiptly-go/pkg/api"
)

var (
	receiptsPage     int
	receiptsLimit    int
	receiptsCategory string
	receiptsStatus   string
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Browse your receipts",
}

var receiptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List receipts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, cleanup, err := newClient(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		page, err := client.API().ListReceipts(cmd.Context(), api.ReceiptQuery{
			Page:     receiptsPage,
			Limit:    receiptsLimit,
			Category: receiptsCategory,
			Status:   receiptsStatus,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tMERCHANT\tAMOUNT\tCATEGORY\tSTATUS")
		for _, r := range page.Receipts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Merchant, r.Amount, r.Category, r.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("page %d, %d total\n", page.Page, page.Total)
		return nil
	},
}

var receiptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one receipt with its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid receipt id %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, cleanup, err := newClient(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		r, err := client.API().GetReceipt(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s  %s (%s)\n", r.Date, r.Merchant, r.Amount, r.Status)
		for _, item := range r.Items {
			fmt.Printf("  %s  %s\n", item.Name, item.Price)
		}
		return nil
	},
}

func init() {
	receiptsListCmd.Flags().IntVar(&receiptsPage, "page", 1, "Page number")
	receiptsListCmd.Flags().IntVar(&receiptsLimit, "limit", 20, "Receipts per page")
	receiptsListCmd.Flags().StringVar(&receiptsCategory, "category", "", "Filter by category")
	receiptsListCmd.Flags().StringVar(&receiptsStatus, "status", "", "Filter by status")
	receiptsCmd.AddCommand(receiptsListCmd)
	receiptsCmd.AddCommand(receiptsShowCmd)
	rootCmd.AddCommand(receiptsCmd)
}
