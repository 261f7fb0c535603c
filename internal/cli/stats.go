package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/metrics"
	"github.com/chatvault/chatvault/internal/orchestrator"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	RunE:  runStats,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream job and session events from the server",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	uptime := time.Duration(stats.Metrics.UptimeSeconds * float64(time.Second))
	fmt.Printf("Uptime: %s\n", uptime.Round(time.Second))
	fmt.Printf("Stored conversations: %d\n", stats.StoredConversations)
	fmt.Printf("Active jobs: %d\n", stats.ActiveJobs)
	fmt.Printf("Active sessions: %d\n", stats.ActiveSessions)

	c := stats.Metrics.Counters
	fmt.Println("\nOutcomes:")
	fmt.Printf("  Jobs: %d succeeded, %d failed, %d cancelled\n",
		c.JobsSucceeded, c.JobsFailed, c.JobsCancelled)
	fmt.Printf("  Sessions: %d stopped, %d errored\n", c.SessionsStopped, c.SessionsErrored)
	fmt.Printf("  Stored: %d conversations, %d messages\n", c.ConversationsStored, c.MessagesStored)
	fmt.Printf("  Webhooks: %d delivered, %d dropped\n", c.WebhooksDelivered, c.WebhooksDropped)

	fmt.Println("\nOperations:")
	printOp("validate", stats.Metrics.Validate)
	printOp("invoke", stats.Metrics.Invoke)
	printOp("extraction", stats.Metrics.Extraction)
	printOp("poll", stats.Metrics.Poll)
	printOp("webhook", stats.Metrics.Webhook)
	return nil
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	line := fmt.Sprintf("  %-12s count=%d avg=%.0fms min=%dms max=%dms",
		name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalConversations != nil {
		line += fmt.Sprintf(" conversations=%d", *op.TotalConversations)
	}
	fmt.Println(line)
}

func runWatch(cmd *cobra.Command, args []string) error {
	fmt.Println("Watching events, Ctrl+C to stop...")

	return apiClient.WatchEvents(cmd.Context(), func(ev orchestrator.Event) error {
		switch {
		case ev.Job != nil:
			fmt.Printf("%s  job %s  %s  %s  %d%%\n",
				ev.At.Format("15:04:05"), ev.Job.ID, ev.Job.Provider, ev.Job.State, ev.Job.Progress)
		case ev.Session != nil:
			fmt.Printf("%s  session %s  %s  %s  captured=%d\n",
				ev.At.Format("15:04:05"), ev.Session.ID, ev.Session.Provider, ev.Session.State,
				ev.Session.ConversationsCaptured)
		}
		return nil
	})
}
