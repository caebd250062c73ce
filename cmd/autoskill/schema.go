package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/lifecycle"
	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schemas for exposing autoskill as agent tools",
	Long: `Schema prints one JSON-schema document per tool (create_skill,
execute_skill, update_skill, delete_skill) for wiring the lifecycle
manager into a function-calling agent.`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := json.MarshalIndent(lifecycle.ToolSchemas(), "", "  ")
		if err != nil {
			presenter.Error(err, "failed to render schemas")
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}
