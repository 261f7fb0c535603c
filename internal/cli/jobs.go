package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect extraction jobs",
	Long: `List all extraction jobs or inspect a specific job by ID.

Examples:
  chatvault jobs           # List all jobs
  chatvault jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel an extraction job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-32s %-11s %-9s %s\n", "ID", "PROVIDER", "TOOL", "STATE", "PROGRESS", "CREATED")
	fmt.Println(strings.Repeat("-", 84))
	for _, job := range jobs {
		created := job.CreatedAt.Format("15:04:05")
		fmt.Printf("%-10s %-10s %-32s %-11s %8d%% %s\n",
			job.ID, job.Provider, job.Tool, job.State, job.Progress, created)
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id, false)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Provider: %s\n", job.Provider)
	fmt.Printf("  Tool: %s\n", job.Tool)
	fmt.Printf("  State: %s\n", job.State)
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	fmt.Printf("  Attempts: %d\n", job.Attempts)
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", job.FinishedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Second))
		}
	}

	if job.Error != nil {
		fmt.Printf("  Error: %s: %s\n", job.Error.Kind, job.Error.Message)
	}

	if job.Result != nil {
		messages := 0
		for _, conv := range job.Result.Conversations {
			messages += len(conv.Messages)
		}
		fmt.Println("\nResult:")
		fmt.Printf("  Conversations: %d\n", len(job.Result.Conversations))
		fmt.Printf("  Messages: %d\n", messages)
		if len(job.Result.ConversationErrors) > 0 {
			fmt.Printf("\n  Skipped (%d):\n", len(job.Result.ConversationErrors))
			for _, e := range job.Result.ConversationErrors {
				fmt.Printf("    - %s\n", e)
			}
		}
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	job, err := apiClient.CancelJob(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	fmt.Printf("Job %s is now %s\n", job.ID, job.State)
	return nil
}
