package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

var execCmd = &cobra.Command{
	Use:   "exec <name> [parameters-json]",
	Short: "Execute a skill",
	Long: `Exec runs a skill with the given parameters (a JSON object). On a
runtime failure the reflection loop repairs the skill automatically, up to
the configured round budget.

Examples:
  autoskill exec csv-summary '{"text": "a,b\n1,2"}'
  autoskill exec greeter`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		parameters := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &parameters); err != nil {
				presenter.Error(err, "parameters must be a JSON object")
				os.Exit(1)
			}
		}

		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		result, err := manager.ExecuteSkill(cmd.Context(), args[0], parameters)
		if err != nil && result == nil {
			presenter.Error(err, "failed to execute skill")
			os.Exit(1)
		}
		if err != nil && skilltypes.IsKind(err, skilltypes.ErrReflectionExhausted) {
			presenter.Warning("automatic repair exhausted its budget")
		}

		if result.Success {
			presenter.Success(fmt.Sprintf("skill %q succeeded in %s", result.SkillName, result.Duration))
			if len(result.Output) > 0 {
				fmt.Println(string(result.Output))
			}
			return
		}

		if result.Error != nil {
			presenter.Error(result.Error, fmt.Sprintf("skill %q failed", result.SkillName))
			if result.Error.Trace != "" {
				presenter.Separator()
				presenter.Info(result.Error.Trace)
			}
		}
		os.Exit(1)
	},
}
