package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// ErrNoBody is returned when an upstream answered without anything to relay.
var ErrNoBody = errors.New("upstream returned no streamable body")

// OpenAIProvider relays a chat-completions stream without decoding it.
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider returns a proxy using client, or http.DefaultClient when nil. The client must
// not carry an overall timeout shorter than a full reply.
func NewOpenAIProvider(cfg config.OpenAIConfig, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{cfg: cfg, client: client}
}

func (p *OpenAIProvider) Mode() Mode { return ModeOpenAI }

func (p *OpenAIProvider) ContentType() string { return "text/event-stream" }

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

// Stream forwards the full history with stream=true and hands back the raw response body.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	payload := completionRequest{
		Model:    p.cfg.Model,
		Messages: make([]completionMessage, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, completionMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build completion request")
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call completion endpoint")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, errors.Wrapf(ErrNoBody, "completion endpoint status %d", resp.StatusCode)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp.Body, nil
}
