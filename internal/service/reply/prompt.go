package reply

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

const historyLimit = 20

const systemPrompt = `You are the SniprX assistant embedded in an XAUUSD algorithmic trading dashboard.
Answer questions about the bot's strategies (MMXM, Judas Swing, OTE, MMC), trading sessions, risk management and dashboard features.
Keep answers short and practical. Never promise profits and never give personalised financial advice.`

// buildSystemPrompt appends the strategies the user already asked about, so the model can
// stay consistent with the dashboard's canned explanations.
func buildSystemPrompt(topics []string) string {
	if len(topics) == 0 {
		return systemPrompt
	}

	var builder strings.Builder
	builder.WriteString(systemPrompt)
	builder.WriteString("\n\nTopics already raised in this conversation: ")
	builder.WriteString(strings.Join(topics, ", "))
	builder.WriteString(".")
	return builder.String()
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
