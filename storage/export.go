package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tether/model"
)

// conversationExport is the on-disk shape of an exported conversation.
type conversationExport struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
}

// ExportToJSON writes a conversation and its history to a JSON file.
func (cs *ConversationStore) ExportToJSON(ctx context.Context, id, exportPath string) error {
	conv, err := cs.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", id)
	}

	messages, err := cs.ReadMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	data, err := json.MarshalIndent(conversationExport{
		Conversation: *conv,
		Messages:     messages,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// 0700 dir, 0600 file - exports contain conversation history
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GenerateExportPath builds a default export path under ~/Downloads.
func GenerateExportPath(title string) string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE") // Windows fallback
	}

	filename := fmt.Sprintf("tether-conversation-%s-%s.json",
		SanitizeFilename(title),
		time.Now().Format("20060102-150405"))

	return filepath.Join(homeDir, "Downloads", filename)
}

// SanitizeFilename removes or replaces characters that are invalid in filenames.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", " ", "-",
		"\n", "-", "\r", "-",
	)
	name = replacer.Replace(name)
	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "conversation"
	}

	return name
}

// GenerateConversationTitle derives a title from the first user message.
func GenerateConversationTitle(firstMessage string) string {
	name := firstMessage
	if len(name) > 30 {
		name = name[:30] + "..."
	}

	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return name
}
