package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
	"github.com/autoskill-ai/autoskill/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		info := version.Get()
		if asJSON {
			out, err := info.JSON()
			if err != nil {
				presenter.Error(err, "failed to render version")
				os.Exit(1)
			}
			fmt.Println(out)
			return
		}
		fmt.Println(info.String())
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "Print version information as JSON")
}
