package llmadvisor

import "github.com/openai/openai-go"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultHistoryLimit caps the non-system messages kept in a conversation.
const DefaultHistoryLimit = 40

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// History is an immutable, bounded conversation. System messages are always
// kept; once the non-system messages exceed the limit the oldest are dropped.
type History struct {
	limit    int
	messages []Message
}

// NewHistory starts a conversation with the given system prompt.
func NewHistory(limit int, systemPrompt string) History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h := History{limit: limit}
	if systemPrompt != "" {
		h.messages = []Message{{Role: RoleSystem, Content: systemPrompt}}
	}
	return h
}

// Append returns a new history with msgs added and truncation applied.
func (h History) Append(msgs ...Message) History {
	all := make([]Message, 0, len(h.messages)+len(msgs))
	all = append(all, h.messages...)
	all = append(all, msgs...)

	limit := h.limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	nonSystem := 0
	for _, m := range all {
		if m.Role != RoleSystem {
			nonSystem++
		}
	}
	drop := nonSystem - limit
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if m.Role != RoleSystem && drop > 0 {
			drop--
			continue
		}
		out = append(out, m)
	}
	return History{limit: limit, messages: out}
}

// Messages returns a copy of the conversation.
func (h History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages, system messages included.
func (h History) Len() int {
	return len(h.messages)
}

func (h History) params() []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(h.messages))
	for _, m := range h.messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}
