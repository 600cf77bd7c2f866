package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Fetch the current rate and print the price report",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Report(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}
