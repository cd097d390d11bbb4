package reply

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sniprx/assistant/backend/internal/analysis/strategy"
	"github.com/sniprx/assistant/backend/internal/model/chat"
)

const (
	defaultChunkSize     = 8
	defaultChunkInterval = 40 * time.Millisecond
)

// MockProvider answers from the keyword rules and drips the text out in timed chunks.
type MockProvider struct {
	chunkSize int
	interval  time.Duration
}

// NewMockProvider returns a mock provider. Non-positive values select 8 runes every 40ms.
func NewMockProvider(chunkSize int, interval time.Duration) *MockProvider {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if interval <= 0 {
		interval = defaultChunkInterval
	}
	return &MockProvider{chunkSize: chunkSize, interval: interval}
}

func (p *MockProvider) Mode() Mode { return ModeMock }

func (p *MockProvider) ContentType() string { return "text/plain; charset=utf-8" }

// Stream never fails.
func (p *MockProvider) Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	return NewChunkStream(ctx, strategy.ServerReply(messages), p.chunkSize, p.interval), nil
}

// Chunks splits text into pieces of at most size runes.
func Chunks(text string, size int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// ChunkStream emits one chunk per tick. Each Read returns at most one chunk. The ticker is
// stopped when the last chunk is written, when ctx ends, or when Close is called, and Close
// does not return until the producer goroutine has exited.
type ChunkStream struct {
	pr   *io.PipeReader
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewChunkStream starts producing chunks of text immediately.
func NewChunkStream(ctx context.Context, text string, size int, interval time.Duration) *ChunkStream {
	pr, pw := io.Pipe()
	s := &ChunkStream{
		pr:   pr,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.produce(ctx, pw, Chunks(text, size), interval)
	return s
}

func (s *ChunkStream) produce(ctx context.Context, pw *io.PipeWriter, chunks []string, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			pw.CloseWithError(ctx.Err())
			return
		case <-s.stop:
			pw.Close()
			return
		case <-ticker.C:
		}

		if _, err := pw.Write([]byte(chunk)); err != nil {
			return
		}
	}
	pw.Close()
}

func (s *ChunkStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the producer and waits for it.
func (s *ChunkStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.pr.Close()
	})
	<-s.done
	return nil
}
