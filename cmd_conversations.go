package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tether/config"
	"tether/storage"
)

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsSearchCmd, conversationsExportCmd, conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage stored conversations",
}

func openStore() (*storage.ConversationStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.NewConversationStore(cfg.DataDir())
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		conversations, err := store.ListConversations(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMODEL\tUPDATED")
		for _, conv := range conversations {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				conv.ID, conv.Title, conv.Model, conv.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var conversationsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search message history across all conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		matches, err := storage.NewSearchIndex(store).SearchAllConversations(context.Background(), args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONVERSATION\tROLE\tMATCH")
		for _, match := range matches {
			fmt.Fprintf(w, "%s\t%s\t%s\n", match.ConversationTitle, match.Role, match.Preview)
		}
		return w.Flush()
	},
}

var conversationsExportCmd = &cobra.Command{
	Use:   "export [id] [path]",
	Short: "Export a conversation to a JSON file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		conv, err := store.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("conversation %s not found", args[0])
		}

		path := storage.GenerateExportPath(conv.Title)
		if len(args) == 2 {
			path = args[1]
		}

		if err := store.ExportToJSON(ctx, conv.ID, path); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", path)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.DeleteConversation(context.Background(), args[0])
	},
}
