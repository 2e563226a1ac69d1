package domain

import "strings"

// Query is an immutable pair of the raw user text and its normalized
// form. Normalized text is the cache key and the embedding input.
type Query struct {
	Raw        string
	Normalized string
}

// NewQuery derives the normalized form from raw user text.
func NewQuery(raw string) (Query, error) {
	normalized := NormalizeText(raw)
	if normalized == "" {
		return Query{}, ErrEmptyQuery
	}
	return Query{Raw: raw, Normalized: normalized}, nil
}

// NormalizeText lowercases, trims and collapses interior whitespace so
// near-duplicate queries share one cache entry.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// ConversationRole identifies who produced a conversation turn.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// ConversationTurn is a single exchange entry. The pipeline itself is
// stateless across turns; history lives with the caller.
type ConversationTurn struct {
	Role    ConversationRole
	Content string
}
