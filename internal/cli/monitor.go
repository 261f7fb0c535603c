package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/models"
)

var (
	monitorTool   string
	monitorParams []string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage monitoring sessions",
	Long: `Start and control sessions that poll a provider for new messages
and push notifications to a webhook.

Examples:
  chatvault monitor start --provider chatgpt --tool monitor_chatgpt_realtime \
    --cred session_token=env:CHATGPT_TOKEN \
    --param webhook_url=https://example.com/hook --param polling_interval=60
  chatvault monitor list
  chatvault monitor pause abc123
  chatvault monitor stop abc123`,
}

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a monitoring session",
	RunE:  runMonitorStart,
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitoring sessions",
	RunE:  runMonitorList,
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a monitoring session",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStatus,
}

var monitorPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause a monitoring session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorControl(args[0], "pause")
	},
}

var monitorResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused monitoring session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorControl(args[0], "resume")
	},
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a monitoring session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorControl(args[0], "stop")
	},
}

func init() {
	monitorStartCmd.Flags().StringVarP(&credProvider, "provider", "p", "", "provider id (required)")
	monitorStartCmd.Flags().StringSliceVarP(&credPairs, "cred", "c", nil, "credential field key=value (repeatable)")
	monitorStartCmd.Flags().StringVar(&credOrganization, "org", "", "organization scope")
	monitorStartCmd.Flags().StringVar(&credWorkspace, "workspace", "", "workspace scope")
	monitorStartCmd.Flags().StringVarP(&monitorTool, "tool", "t", "", "monitoring tool name (required)")
	monitorStartCmd.Flags().StringSliceVar(&monitorParams, "param", nil, "tool parameter key=value (repeatable)")

	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorListCmd)
	monitorCmd.AddCommand(monitorStatusCmd)
	monitorCmd.AddCommand(monitorPauseCmd)
	monitorCmd.AddCommand(monitorResumeCmd)
	monitorCmd.AddCommand(monitorStopCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runMonitorStart(cmd *cobra.Command, args []string) error {
	if monitorTool == "" {
		return fmt.Errorf("--tool is required")
	}
	cred, err := credentialFromFlags()
	if err != nil {
		return err
	}
	params, err := parseParams(monitorParams)
	if err != nil {
		return fmt.Errorf("parse --param: %w", err)
	}

	ctx := context.Background()

	if _, err := apiClient.ValidateCredentials(ctx, cred); err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}

	sess, err := apiClient.StartMonitoring(ctx, cred, monitorTool, params)
	if err != nil {
		return fmt.Errorf("start monitoring: %w", err)
	}

	fmt.Printf("Session %s started (%s, polling every %s)\n", sess.ID, sess.Provider, sess.PollingInterval)
	fmt.Printf("Use 'chatvault monitor status %s' to check it.\n", sess.ID)
	return nil
}

func runMonitorList(cmd *cobra.Command, args []string) error {
	sessions, err := apiClient.ListSessions(context.Background())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No monitoring sessions")
		return nil
	}

	fmt.Printf("%-10s %-10s %-9s %-10s %-9s %s\n", "ID", "PROVIDER", "STATE", "INTERVAL", "CAPTURED", "STARTED")
	fmt.Println(strings.Repeat("-", 66))
	for _, sess := range sessions {
		fmt.Printf("%-10s %-10s %-9s %-10s %9d %s\n",
			sess.ID, sess.Provider, sess.State, sess.PollingInterval,
			sess.ConversationsCaptured, sess.StartedAt.Format("15:04:05"))
	}
	return nil
}

func runMonitorStatus(cmd *cobra.Command, args []string) error {
	sess, err := apiClient.GetSession(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	fmt.Printf("Session: %s\n", sess.ID)
	fmt.Printf("  Provider: %s\n", sess.Provider)
	fmt.Printf("  Tool: %s\n", sess.Tool)
	fmt.Printf("  State: %s\n", sess.State)
	fmt.Printf("  Polling interval: %s\n", sess.PollingInterval)
	fmt.Printf("  Conversations captured: %d\n", sess.ConversationsCaptured)
	fmt.Printf("  Started: %s\n", sess.StartedAt.Format(time.RFC3339))
	if sess.LastPollAt != nil {
		fmt.Printf("  Last poll: %s\n", sess.LastPollAt.Format(time.RFC3339))
	}
	if sess.NextPollAt != nil {
		fmt.Printf("  Next poll: %s\n", sess.NextPollAt.Format(time.RFC3339))
	}
	if sess.ConsecutiveFailures > 0 {
		fmt.Printf("  Consecutive failures: %d\n", sess.ConsecutiveFailures)
	}
	if sess.LastError != "" {
		fmt.Printf("  Last error: %s\n", sess.LastError)
	}
	return nil
}

func monitorControl(id, action string) error {
	ctx := context.Background()

	ops := map[string]func(context.Context, string) (*models.MonitoringSession, error){
		"pause":  apiClient.PauseSession,
		"resume": apiClient.ResumeSession,
		"stop":   apiClient.StopSession,
	}
	sess, err := ops[action](ctx, id)
	if err != nil {
		return fmt.Errorf("%s session: %w", action, err)
	}
	fmt.Printf("Session %s is now %s\n", id, sess.State)
	return nil
}
