package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autoskill-ai/autoskill/pkg/presenter"
)

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show a skill's code, version history, and usage statistics",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showCode, _ := cmd.Flags().GetBool("code")
		historyLimit, _ := cmd.Flags().GetInt("history")

		manager, err := newManager()
		if err != nil {
			presenter.Error(err, "failed to initialize")
			os.Exit(1)
		}
		defer manager.Close()

		detail, err := manager.GetSkillInfo(cmd.Context(), args[0])
		if err != nil {
			presenter.Error(err, "failed to load skill")
			os.Exit(1)
		}

		presenter.Section(detail.Info.Name)
		presenter.Info(fmt.Sprintf("Description: %s", detail.Info.Description))
		presenter.Info(fmt.Sprintf("Version:     %d", detail.Info.Version))
		presenter.Info(fmt.Sprintf("Status:      %s", detail.Info.Status))
		if len(detail.Info.Dependencies) > 0 {
			presenter.Info(fmt.Sprintf("Depends on:  %s", strings.Join(detail.Info.Dependencies, ", ")))
		}
		if len(detail.Info.Parameters) > 0 {
			presenter.Info(fmt.Sprintf("Parameters:  %s", string(detail.Info.Parameters)))
		}

		if detail.Usage.TotalRuns > 0 {
			presenter.Separator()
			presenter.Info(fmt.Sprintf("Runs: %d (%.0f%% success), avg %.0fms, last used %s",
				detail.Usage.TotalRuns,
				detail.Usage.SuccessRate*100,
				detail.Usage.AvgDurationMS,
				detail.Usage.LastUsed.Format("2006-01-02 15:04:05")))
		}

		presenter.Separator()
		presenter.Section("Versions")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tCREATED\tNOTE")
		for _, record := range detail.Versions {
			fmt.Fprintf(w, "%d\t%s\t%s\n", record.Version, record.CreatedAt.Format("2006-01-02 15:04:05"), record.Note)
		}
		w.Flush()

		if historyLimit > 0 {
			entries, err := manager.UsageHistory(cmd.Context(), args[0], historyLimit)
			if err == nil && len(entries) > 0 {
				presenter.Separator()
				presenter.Section("Recent executions")
				hw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(hw, "WHEN\tVERSION\tOK\tERROR")
				for _, entry := range entries {
					status := "yes"
					if !entry.Success {
						status = "no"
					}
					fmt.Fprintf(hw, "%s\t%d\t%s\t%s\n", entry.ExecutedAt.Format("2006-01-02 15:04:05"), entry.Version, status, entry.ErrorMessage)
				}
				hw.Flush()
			}
		}

		if showCode {
			presenter.Separator()
			fmt.Println(detail.Code)
		}
	},
}

func init() {
	infoCmd.Flags().Bool("code", false, "Print the skill's source code")
	infoCmd.Flags().Int("history", 0, "Show the N most recent executions")
}
