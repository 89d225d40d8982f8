package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/diskaudit/internal/config"
	"github.com/praetorian-inc/diskaudit/pkg/templates"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [id]",
	Short: "List or render the inventory query templates",
	Long: `List the Resource Graph query templates used for inventory backfill and
enrichment. With a template id, print the query rendered for --start.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString(config.KeyTemplateDir)
		loader, err := loadTemplates(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, t := range loader.GetTemplates() {
				fmt.Fprintf(out, "%-24s %-48s %d columns\n", t.ID, t.Name, len(t.Columns))
			}
			return nil
		}

		tmpl, err := loader.Get(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString(config.KeyStart)
		start := time.Now().UTC().AddDate(0, 0, -7)
		if raw != "" {
			if start, err = config.ParseTime(raw); err != nil {
				return err
			}
		}
		query, err := tmpl.Render(templates.QueryParams{Start: start.Format(time.RFC3339)})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "// %s\n// %s\n", tmpl.Name, strings.TrimSpace(tmpl.Description))
		if len(tmpl.Columns) > 0 {
			fmt.Fprintf(out, "// columns: %s\n", strings.Join(tmpl.Columns, ", "))
		}
		fmt.Fprint(out, query)
		return nil
	},
}

// loadTemplates returns the embedded templates, overridden by any YAML files
// in dir.
func loadTemplates(dir string) (*templates.TemplateLoader, error) {
	loader, err := templates.NewTemplateLoader()
	if err != nil {
		return nil, fmt.Errorf("failed to load query templates: %w", err)
	}
	if dir != "" {
		if err := loader.LoadUserTemplates(dir); err != nil {
			return nil, fmt.Errorf("failed to load query templates from %s: %w", dir, err)
		}
	}
	return loader, nil
}

func init() {
	templatesCmd.Flags().String(config.KeyTemplateDir, "", "directory of YAML templates overriding the built-in ones")
	templatesCmd.Flags().String(config.KeyStart, "", "window start to render the query with (default 7 days ago)")
	azureCmd.AddCommand(templatesCmd)
}
