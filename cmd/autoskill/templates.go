package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
	"github.com/autoskill-ai/autoskill/pkg/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the available prompt templates",
	Long: `Templates seed skill generation. Builtins ship with autoskill; custom
templates are markdown files with YAML frontmatter (name, description)
placed in the templates directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			presenter.Error(err, "failed to load configuration")
			os.Exit(1)
		}
		registry, err := templates.NewRegistry(cfg.TemplatesDir)
		if err != nil {
			presenter.Error(err, "failed to load templates")
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, t := range registry.List() {
			fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
		}
		w.Flush()
	},
}
