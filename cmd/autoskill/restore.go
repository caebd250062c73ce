package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <name> <version>",
	Short: "Roll a skill back to an earlier version",
	Long: `Restore re-saves an earlier version's content as the next version, so
the rollback itself is recorded in the history.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		target, err := strconv.Atoi(args[1])
		if err != nil || target < 1 {
			presenter.Error(fmt.Errorf("invalid version %q", args[1]), "")
			os.Exit(1)
		}

		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		sk, err := manager.RestoreSkill(cmd.Context(), args[0], target)
		if err != nil {
			presenter.Error(err, "failed to restore skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("restored skill %q from version %d as version %d", sk.Name, target, sk.Version))
	},
}
