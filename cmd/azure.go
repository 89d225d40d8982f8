package cmd

import (
	"github.com/spf13/cobra"
)

var azureCmd = &cobra.Command{
	Use:     "azure",
	Aliases: []string{"az"},
	Short:   "Audit Azure managed disks",
	Long: `Audits that read the Azure Activity Log and Resource Graph.

Credentials come from the Azure default credential chain (environment,
managed identity, Azure CLI), scoped with --tenant.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(azureCmd)
}
