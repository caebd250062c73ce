package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var isolationCmd = &cobra.Command{
	Use:   "isolation",
	Short: "Inspect and change isolation levels",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var isolationGetCmd = &cobra.Command{
	Use:   "get [skill]",
	Short: "Show the default isolation level, or one skill's effective level",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		if len(args) == 0 {
			presenter.Info(manager.IsolationLevel())
			return
		}
		level, err := manager.SkillIsolation(args[0])
		if err != nil {
			presenter.Error(err, "failed to resolve isolation level")
			os.Exit(1)
		}
		presenter.Info(level)
	},
}

var isolationSetCmd = &cobra.Command{
	Use:   "set <level> [skill]",
	Short: "Pin a skill to an isolation level",
	Long: `With a skill argument, pins that skill to the level (persisted as a new
version). Without one, the level only applies to this invocation; set
isolation_level in the config file to change the default durably.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		if len(args) == 1 {
			if err := manager.SetIsolationLevel(args[0]); err != nil {
				presenter.Error(err, "failed to set isolation level")
				os.Exit(1)
			}
			presenter.Success(fmt.Sprintf("default isolation level set to %q for this invocation", args[0]))
			presenter.Info("set isolation_level in ~/.autoskill/config.yaml to make this permanent")
			return
		}

		sk, err := manager.SetSkillIsolation(cmd.Context(), args[1], args[0])
		if err != nil {
			presenter.Error(err, "failed to pin skill isolation")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("skill %q pinned to isolation %q (version %d)", sk.Name, args[0], sk.Version))
	},
}

var isolationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered isolation strategies",
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		presenter.Info(strings.Join(manager.Strategies(), "\n"))
	},
}

func init() {
	isolationCmd.AddCommand(isolationGetCmd, isolationSetCmd, isolationListCmd)
}
