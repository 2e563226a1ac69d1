package openai

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

// fakeAPI is a controllable API implementation for tests
type fakeAPI struct {
	embedding    []float32
	embeddingErr error

	completion    string
	completionErr error

	stream    ChatStream
	streamErr error

	embedCalls int
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.embeddingErr != nil {
		return nil, f.embeddingErr
	}
	return f.embedding, nil
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.completionErr != nil {
		return openai.ChatCompletionResponse{}, f.completionErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.completion}},
		},
	}, nil
}

func (f *fakeAPI) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

// fakeStream replays scripted chunks then EOF
type fakeStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return openai.ChatCompletionStreamResponse{}, s.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
		},
	}, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// gatedStream blocks each Recv until the gate is released, so tests can
// cancel deterministically between chunks.
type gatedStream struct {
	fakeStream
	gate chan struct{}
}

func (s *gatedStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	<-s.gate
	return s.fakeStream.Recv()
}

func newTestClient(api API, dimensions int) *Client {
	return &Client{api: api, chatModel: DefaultChatModel, dimensions: dimensions}
}

func TestGenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("returns embedding with expected dimensions", func(t *testing.T) {
		vec := make([]float32, 4)
		api := &fakeAPI{embedding: vec}
		client := newTestClient(api, 4)

		got, err := client.GenerateEmbedding(ctx, "hanoi weather")
		require.NoError(t, err)
		assert.Len(t, got, 4)
		assert.Equal(t, 1, api.embedCalls)
	})

	t.Run("rejects empty text without calling provider", func(t *testing.T) {
		api := &fakeAPI{}
		client := newTestClient(api, 4)

		_, err := client.GenerateEmbedding(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)
		assert.Zero(t, api.embedCalls)
	})

	t.Run("rejects wrong dimensions", func(t *testing.T) {
		api := &fakeAPI{embedding: make([]float32, 3)}
		client := newTestClient(api, 4)

		_, err := client.GenerateEmbedding(ctx, "hanoi weather")
		assert.ErrorIs(t, err, domain.ErrInvalidDimensions)
	})

	t.Run("wraps provider errors", func(t *testing.T) {
		cause := errors.New("rate limited")
		api := &fakeAPI{embeddingErr: cause}
		client := newTestClient(api, 4)

		_, err := client.GenerateEmbedding(ctx, "hanoi weather")
		assert.ErrorIs(t, err, cause)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("returns completion text", func(t *testing.T) {
		api := &fakeAPI{completion: "a short summary"}
		client := newTestClient(api, 4)

		got, err := client.Complete(ctx, []domain.ConversationTurn{
			{Role: domain.RoleSystem, Content: "summarize"},
			{Role: domain.RoleUser, Content: "context"},
		}, 300)
		require.NoError(t, err)
		assert.Equal(t, "a short summary", got)
	})

	t.Run("surfaces provider failure", func(t *testing.T) {
		cause := errors.New("upstream down")
		api := &fakeAPI{completionErr: cause}
		client := newTestClient(api, 4)

		_, err := client.Complete(ctx, nil, 300)
		assert.ErrorIs(t, err, cause)
	})
}

func TestCompleteStream(t *testing.T) {
	t.Run("streams chunks in order and terminates", func(t *testing.T) {
		stream := &fakeStream{chunks: []string{"The ", "best ", "season"}}
		api := &fakeAPI{stream: stream}
		client := newTestClient(api, 4)

		ch, err := client.CompleteStream(context.Background(), nil, 800)
		require.NoError(t, err)

		var got string
		var sawDone bool
		for token := range ch {
			require.NoError(t, token.Err)
			got += token.Content
			if token.Done {
				sawDone = true
			}
		}
		assert.Equal(t, "The best season", got)
		assert.True(t, sawDone)
		assert.True(t, stream.closed)
	})

	t.Run("cancellation stops consumption and closes provider stream", func(t *testing.T) {
		stream := &gatedStream{
			fakeStream: fakeStream{chunks: []string{"a", "b", "c", "d", "e"}},
			gate:       make(chan struct{}, 8),
		}
		api := &fakeAPI{stream: stream}
		client := newTestClient(api, 4)

		ctx, cancel := context.WithCancel(context.Background())
		ch, err := client.CompleteStream(ctx, nil, 800)
		require.NoError(t, err)

		// Release exactly one chunk, read it, then cancel mid-stream.
		stream.gate <- struct{}{}
		first := <-ch
		require.NoError(t, first.Err)
		cancel()
		close(stream.gate)

		var last domain.StreamToken
		for token := range ch {
			last = token
		}
		assert.True(t, last.Done)
		assert.ErrorIs(t, last.Err, context.Canceled)

		require.Eventually(t, func() bool { return stream.closed }, time.Second, 10*time.Millisecond)
		assert.Less(t, stream.pos, len(stream.chunks))
	})

	t.Run("mid-stream provider error ends the stream", func(t *testing.T) {
		cause := errors.New("connection reset")
		stream := &fakeStream{chunks: []string{"partial"}, err: cause}
		api := &fakeAPI{stream: stream}
		client := newTestClient(api, 4)

		ch, err := client.CompleteStream(context.Background(), nil, 800)
		require.NoError(t, err)

		var last domain.StreamToken
		for token := range ch {
			last = token
		}
		assert.True(t, last.Done)
		assert.ErrorIs(t, last.Err, cause)
	})
}

func TestToChatMessages(t *testing.T) {
	messages := toChatMessages([]domain.ConversationTurn{
		{Role: domain.RoleSystem, Content: "s"},
		{Role: domain.RoleUser, Content: "u"},
		{Role: domain.RoleAssistant, Content: "a"},
	})
	require.Len(t, messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[2].Role)
}
