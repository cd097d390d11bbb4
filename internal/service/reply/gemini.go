package reply

import (
	"context"
	"io"
	"iter"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/model/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

type contentStreamer func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// GeminiProvider streams from the Gemini API and frames each delta like ArkProvider does.
type GeminiProvider struct {
	model  string
	stream contentStreamer
}

// NewGeminiProvider creates a Gemini API client from cfg.
func NewGeminiProvider(ctx context.Context, cfg config.GeminiConfig) (*GeminiProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("gemini api key missing: set GEMINI_API_KEY or GENAI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiProvider{model: cfg.Model, stream: client.Models.GenerateContentStream}, nil
}

func (p *GeminiProvider) Mode() Mode { return ModeGemini }

func (p *GeminiProvider) ContentType() string { return "text/event-stream" }

// Stream waits for the first response so that a rejected request surfaces as an error and the
// engine can fall back; later failures are reported in-band.
func (p *GeminiProvider) Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(topicsOf(messages)), genai.RoleUser),
	}

	next, stop := iter.Pull2(p.stream(streamCtx, p.model, buildGeminiContents(messages), cfg))
	first, err, ok := next()
	if err != nil {
		stop()
		cancel()
		return nil, errors.Wrap(err, "start gemini stream")
	}
	if !ok {
		stop()
		cancel()
		return nil, ErrNoBody
	}

	pr, pw := io.Pipe()
	go relayGemini(first, next, stop, pw)

	return &cancelReader{PipeReader: pr, cancel: cancel}, nil
}

func relayGemini(first *genai.GenerateContentResponse, next func() (*genai.GenerateContentResponse, error, bool), stop func(), pw *io.PipeWriter) {
	defer stop()

	resp := first
	for {
		if text := resp.Text(); text != "" {
			if err := utils.WriteSSEData(pw, sseDelta{Content: text}); err != nil {
				return
			}
		}

		var (
			err error
			ok  bool
		)
		resp, err, ok = next()
		if !ok {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("gemini stream interrupted")
			utils.WriteSSEData(pw, sseDelta{Error: err.Error()})
			pw.CloseWithError(err)
			return
		}
	}
	utils.WriteSSEDone(pw)
	pw.Close()
}

// cancelReader stops the upstream request when the consumer goes away.
type cancelReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (c *cancelReader) Close() error {
	c.cancel()
	return c.PipeReader.Close()
}

func buildGeminiContents(messages []chat.Message) []*genai.Content {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return contents
}
