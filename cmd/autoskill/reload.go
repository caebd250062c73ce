package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read the skills directory and reconcile the registry",
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		if err := manager.ReloadSkills(); err != nil {
			presenter.Error(err, "failed to reload skills")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("reloaded %d skills", len(manager.ListSkills())))
	},
}
