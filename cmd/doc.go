package cmd

import (
	"fmt"
	"os"

	"github.com/praetorian-inc/diskaudit/internal/message"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docCmd = &cobra.Command{
	Use:    "gendoc",
	Short:  "Generate Markdown documentation",
	Long:   `Generate Markdown documentation for the CLI and its subcommands.`,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create documentation directory: %w", err)
		}

		rootCmd.DisableAutoGenTag = true
		for _, c := range rootCmd.Commands() {
			if c.Name() == "completion" {
				rootCmd.RemoveCommand(c)
			}
		}

		if err := doc.GenMarkdownTree(rootCmd, dir); err != nil {
			return fmt.Errorf("failed to generate documentation: %w", err)
		}
		message.Success("Documentation generated in %s", dir)
		return nil
	},
}

func init() {
	docCmd.Flags().String("dir", "./docs", "directory to write the Markdown files to")
	rootCmd.AddCommand(docCmd)
}
