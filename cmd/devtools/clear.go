package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear logs and errors from the shared store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if clearAll {
				st.ClearAll()
				fmt.Fprintln(cmd.OutOrStdout(), "All data cleared")
				return nil
			}
			st.ClearLogs()
			fmt.Fprintln(cmd.OutOrStdout(), "Logs cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "all", false, "also clear network requests")
	return cmd
}
