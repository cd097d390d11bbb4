package reply

import (
	"context"
	"io"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

type fakeChatModel struct {
	deltas []string
	input  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	return schema.AssistantMessage("unused", nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.input = input
	msgs := make([]*schema.Message, 0, len(f.deltas))
	for _, d := range f.deltas {
		msgs = append(msgs, schema.AssistantMessage(d, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func TestModelProviderFramesDeltasAsSSE(t *testing.T) {
	fake := &fakeChatModel{deltas: []string{"Use ", "", "1-2% risk."}}
	p, err := NewModelProvider(context.Background(), fake)
	require.NoError(t, err)

	body, err := p.Stream(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: "Explain MMXM"},
		{Role: chat.RoleAssistant, Content: "MMXM is..."},
		{Role: chat.RoleUser, Content: "and the stop?"},
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"content\":\"Use \"}\n\ndata: {\"content\":\"1-2% risk.\"}\n\ndata: [DONE]\n\n", string(data))

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, "Topics already raised in this conversation: mmxm, risk.")
	assert.Equal(t, schema.User, fake.input[3].Role)
	assert.Equal(t, "and the stop?", fake.input[3].Content)
}

func TestBuildHistoryMessagesKeepsTail(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < historyLimit+5; i++ {
		msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: "q"})
	}
	assert.Len(t, buildHistoryMessages(msgs), historyLimit)
	assert.Nil(t, buildHistoryMessages(nil))
}

func TestBuildSystemPromptWithoutTopics(t *testing.T) {
	assert.Equal(t, systemPrompt, buildSystemPrompt(nil))
}
