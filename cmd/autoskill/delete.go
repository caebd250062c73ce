package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a skill and all of its versions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			answer := presenter.Prompt(fmt.Sprintf("delete skill %q and all of its versions?", args[0]), "y", "N")
			if answer != "y" && answer != "Y" {
				presenter.Info("aborted")
				return
			}
		}

		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		if err := manager.DeleteSkill(cmd.Context(), args[0]); err != nil {
			presenter.Error(err, "failed to delete skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("deleted skill %q", args[0]))
	},
}

func init() {
	deleteCmd.Flags().Bool("force", false, "Delete without confirmation")
}
