package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered skills",
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		infos := manager.ListSkills()
		if len(infos) == 0 {
			presenter.Info("no skills registered")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tDESCRIPTION")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Name, info.Version, info.Status, info.Description)
		}
		w.Flush()
	},
}
