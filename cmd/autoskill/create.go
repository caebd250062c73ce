package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/generator"
	"github.com/autoskill-ai/autoskill/pkg/presenter"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

type CreateConfig struct {
	Template  string
	Isolation string
	Force     bool
}

func getCreateConfigFromFlags(cmd *cobra.Command) *CreateConfig {
	config := &CreateConfig{}
	config.Template, _ = cmd.Flags().GetString("template")
	config.Isolation, _ = cmd.Flags().GetString("isolation")
	config.Force, _ = cmd.Flags().GetBool("force")
	return config
}

var createCmd = &cobra.Command{
	Use:   "create <name> <description>",
	Short: "Synthesize a new skill from a task description",
	Long: `Create generates skill code from a natural-language task description,
validates it against the security profile, and stores it as version 1.

A description too similar to an existing skill's is rejected; pass --force
to create the skill anyway.

Examples:
  autoskill create csv-summary "summarize the columns of a csv given as text"
  autoskill create plot-data "draw a bar chart" --template data_analysis
  autoskill create scraper "fetch a page title" --isolation venv --force`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := getCreateConfigFromFlags(cmd)
		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		sk, err := manager.CreateSkill(cmd.Context(), generator.Request{
			Name:           args[0],
			Description:    args[1],
			Template:       config.Template,
			IsolationLevel: config.Isolation,
			Force:          config.Force,
		})
		if err != nil {
			if skilltypes.IsKind(err, skilltypes.ErrDuplicateSkill) {
				presenter.Error(err, "duplicate capability")
				presenter.Info("pass --force to create the skill anyway")
			} else {
				presenter.Error(err, "failed to create skill")
			}
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("created skill %q (version %d)", sk.Name, sk.Version))
	},
}

func init() {
	createCmd.Flags().String("template", "", "Prompt template to seed generation (default base_skill)")
	createCmd.Flags().String("isolation", "", "Pin this skill to an isolation level")
	createCmd.Flags().Bool("force", false, "Skip near-duplicate detection")
}
