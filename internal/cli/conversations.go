package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/client"
)

var (
	convProvider string
	convTitle    string
	convLimit    int
	convOffset   int
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations [conversation-id]",
	Short: "List or show stored conversations",
	Long: `List stored conversations or print one with its messages.

Examples:
  chatvault conversations
  chatvault conversations --provider claude --title budget
  chatvault conversations chatgpt:conv-abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConversations,
}

func init() {
	conversationsCmd.Flags().StringVarP(&convProvider, "provider", "p", "", "filter by provider")
	conversationsCmd.Flags().StringVar(&convTitle, "title", "", "filter by title substring")
	conversationsCmd.Flags().IntVarP(&convLimit, "limit", "n", 50, "max results")
	conversationsCmd.Flags().IntVar(&convOffset, "offset", 0, "results to skip")

	rootCmd.AddCommand(conversationsCmd)
}

func runConversations(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showConversation(ctx, args[0])
	}

	page, err := apiClient.ListConversations(ctx, client.ConversationFilter{
		Provider:      convProvider,
		TitleContains: convTitle,
		Limit:         convLimit,
		Offset:        convOffset,
	})
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if page.Total == 0 {
		fmt.Println("No conversations found")
		return nil
	}

	fmt.Printf("Conversations (%d of %d):\n\n", len(page.Conversations), page.Total)
	for _, conv := range page.Conversations {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-28s %-10s %3d msgs  %s\n",
			conv.ID, conv.Provider, len(conv.Messages), title)
	}
	return nil
}

func showConversation(ctx context.Context, id string) error {
	conv, err := apiClient.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	fmt.Printf("%s (%s)\n", conv.Title, conv.ID)
	fmt.Printf("Updated: %s, %d messages\n", conv.UpdatedAt.Format("2006-01-02 15:04"), len(conv.Messages))
	fmt.Println(strings.Repeat("-", 60))
	for _, msg := range conv.Messages {
		fmt.Printf("\n[%s] %s\n", msg.Role, msg.Timestamp.Format("2006-01-02 15:04"))
		fmt.Println(msg.Content)
	}
	return nil
}
