package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetWorkDir   string
	resetSessionID string
)

var resetCmd = &cobra.Command{
	Use:   "reset [session]",
	Short: "Reset a session's active agent back to the orchestrator",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(resetWorkDir)
		if err != nil {
			return err
		}

		eng, err := buildEngine(workDir)
		if err != nil {
			return err
		}
		eng.Scheduler.Start(cmd.Context())
		defer eng.Scheduler.Stop()
		defer eng.Close()

		sessionID := resetSessionID
		if len(args) > 0 {
			sessionID = args[0]
		}
		if sessionID == "" {
			sessionID = "default"
		}

		if err := eng.Orchestrator.ResetSession(cmd.Context(), sessionID); err != nil {
			return err
		}
		fmt.Printf("session %q reset to orchestrator\n", sessionID)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetWorkDir, "dir", "", "Project directory (defaults to the current working directory)")
	resetCmd.Flags().StringVar(&resetSessionID, "session", "", "Session id (defaults to \"default\")")
}
