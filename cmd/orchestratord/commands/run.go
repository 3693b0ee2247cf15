package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

var (
	runWorkDir   string
	runSessionID string
	runAgent     string
	runStats     bool
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Send a message through a session and print the resulting stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(runWorkDir)
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

		sessionID := runSessionID
		if sessionID == "" {
			sessionID = "default"
		}

		var requested *types.AgentType
		if runAgent != "" {
			t := types.AgentType(runAgent)
			if !types.IsValidAgentType(t) {
				return fmt.Errorf("unknown agent type %q", runAgent)
			}
			requested = &t
		}

		if err := printStream(cmd.Context(), eng.Orchestrator.ProcessMessage(cmd.Context(), sessionID, args[0], requested)); err != nil {
			return err
		}

		if runStats {
			printRunStats(eng, sessionID)
		}
		return nil
	},
}

// printRunStats reports the audit trail and aggregate metrics the
// observability subscribers collected while this single command ran.
func printRunStats(eng *engine, sessionID string) {
	snap := eng.Metrics.Snapshot()
	fmt.Fprintf(os.Stderr, "\n--- stats (session %q) ---\n", sessionID)
	fmt.Fprintf(os.Stderr, "requests=%d failures=%d agentSwitches=%d approvalsRequested=%d approvalsGranted=%d approvalsRejected=%d\n",
		snap.Requests, snap.RequestFailures, snap.AgentSwitches, snap.ApprovalsRequested, snap.ApprovalsGranted, snap.ApprovalsRejected)
	if s, ok := snap.Sessions[sessionID]; ok {
		fmt.Fprintf(os.Stderr, "session: requests=%d failures=%d switches=%d totalDuration=%s\n",
			s.RequestCount, s.FailureCount, s.AgentSwitches, s.TotalDuration)
	}
	for _, entry := range eng.Audit.Entries() {
		fmt.Fprintf(os.Stderr, "[audit] %s %s: %s\n", entry.At.Format("15:04:05"), entry.Type, entry.Summary)
	}
}

func printStream(ctx context.Context, chunks <-chan types.Chunk) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			switch chunk.Type {
			case types.ChunkAssistantMessage:
				if chunk.Token != "" {
					fmt.Print(chunk.Token)
				}
			case types.ChunkAgentSwitched:
				fmt.Fprintf(os.Stderr, "\n[%s]\n", chunk.Content)
			case types.ChunkToolCall:
				if chunk.RequiresApproval {
					fmt.Fprintf(os.Stderr, "\n[tool call %s (%s) awaiting approval, callId=%s]\n", chunk.ToolName, chunk.Arguments, chunk.CallID)
				} else {
					fmt.Fprintf(os.Stderr, "\n[tool call %s (%s), callId=%s]\n", chunk.ToolName, chunk.Arguments, chunk.CallID)
				}
			case types.ChunkError:
				fmt.Fprintf(os.Stderr, "\nerror: %s\n", chunk.Error)
			case types.ChunkDone:
				fmt.Println()
			}
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runWorkDir, "dir", "", "Project directory (defaults to the current working directory)")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "Session id (defaults to \"default\")")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Requested agent type to switch to before processing the message")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "Print the audit trail and aggregate metrics collected during this run")
}
