package reply

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/model/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

// ArkProvider streams from an eino chat model and re-frames each delta as an SSE data line.
type ArkProvider struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkProvider builds the Ark chat model from cfg.
func NewArkProvider(ctx context.Context, cfg config.ArkConfig) (*ArkProvider, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create ark chat model")
	}
	return NewModelProvider(ctx, chatModel)
}

// NewModelProvider wires any eino chat model behind the system prompt template.
func NewModelProvider(ctx context.Context, chatModel model.ChatModel) (*ArkProvider, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "compile chat chain")
	}
	return &ArkProvider{chain: runnable}, nil
}

func (p *ArkProvider) Mode() Mode { return ModeArk }

func (p *ArkProvider) ContentType() string { return "text/event-stream" }

// sseDelta is the frame both hosted-model providers emit per content delta.
type sseDelta struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Stream starts the chain and relays deltas until the model finishes or the body is closed.
func (p *ArkProvider) Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	input := map[string]any{
		"system":  buildSystemPrompt(topicsOf(messages)),
		"history": buildHistoryMessages(messages),
	}

	reader, err := p.chain.Stream(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "stream chat chain")
	}

	pr, pw := io.Pipe()
	go relayDeltas(reader, pw)
	return &closeBoth{PipeReader: pr, upstream: reader}, nil
}

func relayDeltas(reader *schema.StreamReader[*schema.Message], pw *io.PipeWriter) {
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("ark stream interrupted")
			utils.WriteSSEData(pw, sseDelta{Error: err.Error()})
			pw.CloseWithError(err)
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := utils.WriteSSEData(pw, sseDelta{Content: chunk.Content}); err != nil {
			return
		}
	}
	utils.WriteSSEDone(pw)
	pw.Close()
}

// closeBoth closes the consumer side of the pipe and the upstream eino reader.
type closeBoth struct {
	*io.PipeReader
	upstream *schema.StreamReader[*schema.Message]
}

func (c *closeBoth) Close() error {
	c.upstream.Close()
	return c.PipeReader.Close()
}

func topicsOf(messages []chat.Message) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, m := range messages {
		if m.Role != chat.RoleUser {
			continue
		}
		topic := strategy.ServerRules.Topic(m.Content)
		if topic == strategy.TopicDefault || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
	}
	return topics
}
