package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var updateCmd = &cobra.Command{
	Use:   "update <name> <description>",
	Short: "Regenerate a skill from a new task description",
	Long: `Update rewrites an existing skill's code from a new description. The
previous version stays in the history and can be restored.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		sk, err := manager.UpdateSkill(cmd.Context(), args[0], args[1])
		if err != nil {
			presenter.Error(err, "failed to update skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("updated skill %q to version %d", sk.Name, sk.Version))
	},
}
