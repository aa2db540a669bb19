package storage

import (
	"context"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"tether/model"
)

// MessageMatch is one search hit inside a conversation's history.
type MessageMatch struct {
	ConversationID    string
	ConversationTitle string
	MessageIndex      int
	Role              model.Role
	Content           string
	Preview           string
	Timestamp         time.Time
	Score             int
}

// SearchIndex answers substring and fuzzy queries over stored conversations.
type SearchIndex struct {
	store *ConversationStore
}

// NewSearchIndex creates a search index over store.
func NewSearchIndex(store *ConversationStore) *SearchIndex {
	return &SearchIndex{store: store}
}

// SearchConversationTitles fuzzy-matches conversation titles, best first.
func (si *SearchIndex) SearchConversationTitles(ctx context.Context, query string) ([]model.Conversation, error) {
	conversations, err := si.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return conversations, nil
	}

	targets := make([]string, len(conversations))
	for i, conv := range conversations {
		targets[i] = conv.Title
	}

	matches := fuzzy.Find(query, targets)
	filtered := make([]model.Conversation, len(matches))
	for i, match := range matches {
		filtered[i] = conversations[match.Index]
	}
	return filtered, nil
}

// SearchMessages finds query in one conversation's history. System and
// marker messages are skipped.
func (si *SearchIndex) SearchMessages(ctx context.Context, conversationID, query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	conv, err := si.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []MessageMatch{}, nil
	}

	messages, err := si.store.ReadMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return matchMessages(conv, messages, query), nil
}

// SearchAllConversations finds query across every stored conversation.
func (si *SearchIndex) SearchAllConversations(ctx context.Context, query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	conversations, err := si.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	var matches []MessageMatch
	for i := range conversations {
		messages, err := si.store.ReadMessages(ctx, conversations[i].ID)
		if err != nil {
			continue
		}
		matches = append(matches, matchMessages(&conversations[i], messages, query)...)
	}

	return matches, nil
}

func matchMessages(conv *model.Conversation, messages []model.Message, query string) []MessageMatch {
	queryLower := strings.ToLower(query)
	var matches []MessageMatch

	for i, msg := range messages {
		switch msg.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleTool:
		default:
			continue
		}

		if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
			continue
		}

		preview := msg.Content
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}

		matches = append(matches, MessageMatch{
			ConversationID:    conv.ID,
			ConversationTitle: conv.Title,
			MessageIndex:      i,
			Role:              msg.Role,
			Content:           msg.Content,
			Preview:           preview,
			Timestamp:         msg.Timestamp,
		})
	}

	return matches
}
