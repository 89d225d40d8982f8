package cmd

import (
	"fmt"

	"github.com/praetorian-inc/diskaudit/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of diskaudit",
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Fprintln(cmd.OutOrStdout(), version.AbbreviatedVersion())
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.FullVersion())
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "print only version and commit")
	rootCmd.AddCommand(versionCmd)
}
