// Package strategy picks canned trading-strategy replies by keyword.
package strategy

import (
	"fmt"
	"strings"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// Rule pairs a predicate over lower-cased text with the reply it selects.
type Rule struct {
	Topic string
	Match func(lower string) bool
	Reply string
}

// RuleSet is evaluated top to bottom; the first matching rule wins.
type RuleSet []Rule

// Topics in evaluation order.
const (
	TopicMMXM      = "mmxm"
	TopicJudas     = "judas"
	TopicOTE       = "ote"
	TopicRisk      = "risk"
	TopicNYSession = "ny-session"
	TopicDefault   = "default"
)

// Greeting is returned when there is no history to react to.
const Greeting = "Hello — how can I help?"

func containsAny(words ...string) func(string) bool {
	return func(lower string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
}

// ServerRules back the mock reply engine.
var ServerRules = RuleSet{
	{
		Topic: TopicMMXM,
		Match: containsAny("mmxm"),
		Reply: "MMXM is a market-maker strategy combining liquidity hunts, order-block alignment, and CHOCH confirmation. Use HTF order blocks for bias and price reaction for entries.",
	},
	{
		Topic: TopicJudas,
		Match: containsAny("judas"),
		Reply: "Judas Swing identifies fake breakouts around session opens; wait for the reversal and trade with institutional bias.",
	},
	{
		Topic: TopicOTE,
		Match: containsAny("ote"),
		Reply: "OTE uses Fibonacci 0.62-0.79 zones aligned with order blocks for high-probability entries.",
	},
	{
		Topic: TopicRisk,
		Match: containsAny("risk", "stop"),
		Reply: "Manage risk: size to 1-2% of account, place stops beyond liquidity clusters, and keep a risk-reward plan.",
	},
	{
		Topic: TopicNYSession,
		Match: containsAny("ny session"),
		Reply: "NY session has high liquidity and suits MMXM and Judas Swing due to institutional flow.",
	},
}

// WidgetRules are the client's offline replies, used when the chat endpoint is unreachable.
var WidgetRules = RuleSet{
	{
		Topic: TopicMMXM,
		Match: containsAny("mmxm"),
		Reply: "MMXM is a market-maker focused strategy that combines liquidity hunts and CHOCH signals. Use higher timeframe order blocks for bias.",
	},
	{
		Topic: TopicJudas,
		Match: containsAny("judas"),
		Reply: "Judas Swing finds fake breakouts and enters after the reversal. Watch for liquidity sweeps around session opens.",
	},
	{
		Topic: TopicOTE,
		Match: containsAny("ote"),
		Reply: "OTE uses Fibonacci retracements and aligns with order blocks for higher probability entries.",
	},
	{
		Topic: TopicRisk,
		Match: containsAny("risk", "stop"),
		Reply: "Manage risk by sizing trades to 1-2% of account and placing stops beyond liquidity clusters.",
	},
	{
		Topic: TopicNYSession,
		Match: containsAny("ny session"),
		Reply: "NY session has high liquidity — MMXM and Judas Swing perform well due to institutional participation.",
	},
}

// WidgetDefault is the offline reply when no keyword matches.
const WidgetDefault = "I can explain strategies (MMXM, Judas Swing, OTE, MMC), give session guidance, and help with platform features. Ask me a specific question like 'Explain MMXM' or 'Which strategy for NY session?'."

// Match returns the first rule matching text, case-insensitively.
func (rs RuleSet) Match(text string) (Rule, bool) {
	lower := strings.ToLower(text)
	for _, rule := range rs {
		if rule.Match(lower) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Topic names the rule text resolves to, or TopicDefault.
func (rs RuleSet) Topic(text string) string {
	if rule, ok := rs.Match(text); ok {
		return rule.Topic
	}
	return TopicDefault
}

// ServerReply builds the mock engine's answer from the conversation. Only the last message is
// matched; the fallback quotes up to three of the most recent user turns.
func ServerReply(messages []chat.Message) string {
	if len(messages) == 0 {
		return Greeting
	}

	last := messages[len(messages)-1].Content
	if rule, ok := ServerRules.Match(last); ok {
		return rule.Reply
	}
	return summarize(messages)
}

// WidgetReply answers text the user just typed, without any history.
func WidgetReply(text string) string {
	if rule, ok := WidgetRules.Match(text); ok {
		return rule.Reply
	}
	return WidgetDefault
}

func summarize(messages []chat.Message) string {
	recent := make([]string, 0, 3)
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			recent = append(recent, m.Content)
		}
	}
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	return fmt.Sprintf("I read your recent questions: \"%s\". Ask me for a specific strategy explanation or session advice.", strings.Join(recent, " | "))
}
