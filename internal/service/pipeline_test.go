package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

// MockSemanticSearcher is a mock implementation of SemanticSearcher
type MockSemanticSearcher struct {
	mock.Mock
}

func (m *MockSemanticSearcher) Search(ctx context.Context, query domain.Query) ([]domain.RetrievedPassage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedPassage), args.Error(1)
}

// MockGraphSearcher is a mock implementation of GraphSearcher
type MockGraphSearcher struct {
	mock.Mock
}

func (m *MockGraphSearcher) Search(ctx context.Context, query domain.Query, entityHints []string) ([]domain.RetrievedPassage, error) {
	args := m.Called(ctx, query, entityHints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedPassage), args.Error(1)
}

// MockSummarizing is a mock implementation of Summarizing
type MockSummarizing struct {
	mock.Mock
}

func (m *MockSummarizing) Summarize(ctx context.Context, bundle domain.ContextBundle, query domain.Query) (domain.ContextSummary, error) {
	args := m.Called(ctx, bundle, query)
	return args.Get(0).(domain.ContextSummary), args.Error(1)
}

// MockGenerating is a mock implementation of Generating
type MockGenerating struct {
	mock.Mock
}

func (m *MockGenerating) Generate(ctx context.Context, query domain.Query, summary domain.ContextSummary) (domain.AnswerStream, error) {
	args := m.Called(ctx, query, summary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.AnswerStream), args.Error(1)
}

// stateRecorder collects pipeline state transitions. The hook is called
// from the pipeline goroutine, so access is guarded.
type stateRecorder struct {
	mu     sync.Mutex
	states []PipelineState
}

func (r *stateRecorder) hook() func(PipelineState) {
	return func(s PipelineState) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	}
}

func (r *stateRecorder) recorded() []PipelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PipelineState, len(r.states))
	copy(out, r.states)
	return out
}

type pipelineFixture struct {
	semantic   *MockSemanticSearcher
	graph      *MockGraphSearcher
	summarizer *MockSummarizing
	generator  *MockGenerating
	recorder   *stateRecorder
	pipeline   *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		semantic:   new(MockSemanticSearcher),
		graph:      new(MockGraphSearcher),
		summarizer: new(MockSummarizing),
		generator:  new(MockGenerating),
		recorder:   &stateRecorder{},
	}
	f.pipeline = NewPipelineWithConfig(f.semantic, f.graph, NewFuser(12), f.summarizer, f.generator, PipelineConfig{
		RetryBackoff: time.Millisecond,
		StateHook:    f.recorder.hook(),
	})
	return f
}

// drain reads the stream to completion and returns all tokens. Reading
// past the close also guarantees the pipeline goroutine has finished,
// so recorded states are stable afterwards.
func drain(t *testing.T, stream domain.AnswerStream) []domain.StreamToken {
	t.Helper()
	var tokens []domain.StreamToken
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tok, ok := <-stream:
			if !ok {
				return tokens
			}
			tokens = append(tokens, tok)
		case <-deadline:
			t.Fatal("stream did not terminate")
		}
	}
}

func streamText(tokens []domain.StreamToken) string {
	var text string
	for _, tok := range tokens {
		text += tok.Content
	}
	return text
}

func TestPipeline_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path streams the answer and walks every state", func(t *testing.T) {
		f := newPipelineFixture()
		semantic := []domain.RetrievedPassage{semanticPassage("city_hanoi", 0.9)}
		graphFacts := []domain.RetrievedPassage{graphPassage("climate_tropical")}
		summary := domain.ContextSummary{Text: "Hanoi has cool dry winters."}

		f.semantic.On("Search", mock.Anything, mock.Anything).Return(semantic, nil).Once()
		f.graph.On("Search", mock.Anything, mock.Anything, []string{"city_hanoi"}).Return(graphFacts, nil).Once()
		f.summarizer.On("Summarize", mock.Anything, mock.MatchedBy(func(b domain.ContextBundle) bool {
			return len(b.Passages) == 2
		}), mock.Anything).Return(summary, nil).Once()
		f.generator.On("Generate", mock.Anything, mock.Anything, summary).Return(tokenStream(
			domain.StreamToken{Content: "Visit in "},
			domain.StreamToken{Content: "autumn."},
			domain.StreamToken{Done: true},
		), nil).Once()

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)

		tokens := drain(t, stream)
		assert.Equal(t, "Visit in autumn.", streamText(tokens))
		require.NotEmpty(t, tokens)
		last := tokens[len(tokens)-1]
		assert.True(t, last.Done)
		assert.NoError(t, last.Err)

		assert.Equal(t, []PipelineState{
			StateRetrieving, StateFusing, StateSummarizing,
			StateGenerating, StateStreaming, StateDone,
		}, f.recorder.recorded())
		f.semantic.AssertExpectations(t)
		f.graph.AssertExpectations(t)
	})

	t.Run("blank query is rejected before any work starts", func(t *testing.T) {
		f := newPipelineFixture()
		stream, err := f.pipeline.Ask(ctx, "   ")
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
		assert.Nil(t, stream)
		f.semantic.AssertNotCalled(t, "Search")
	})

	t.Run("semantic retrieval is retried once before degrading", func(t *testing.T) {
		f := newPipelineFixture()
		semantic := []domain.RetrievedPassage{semanticPassage("city_hanoi", 0.9)}

		f.semantic.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("transient")).Once()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return(semantic, nil).Once()
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tokenStream(domain.StreamToken{Done: true}), nil)

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		drain(t, stream)

		f.semantic.AssertNumberOfCalls(t, "Search", 2)
		f.summarizer.AssertCalled(t, "Summarize", mock.Anything, mock.MatchedBy(func(b domain.ContextBundle) bool {
			return len(b.Passages) == 1
		}), mock.Anything)
	})

	t.Run("graph outage still yields a semantic-only answer", func(t *testing.T) {
		f := newPipelineFixture()
		semantic := []domain.RetrievedPassage{semanticPassage("city_hanoi", 0.9)}

		f.semantic.On("Search", mock.Anything, mock.Anything).Return(semantic, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("neo4j unreachable"))
		f.summarizer.On("Summarize", mock.Anything, mock.MatchedBy(func(b domain.ContextBundle) bool {
			return len(b.Passages) == 1 && b.Passages[0].Origin == domain.OriginSemantic
		}), mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tokenStream(
			domain.StreamToken{Content: "Hanoi in autumn."},
			domain.StreamToken{Done: true},
		), nil)

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		assert.Equal(t, "Hanoi in autumn.", streamText(tokens))
		f.graph.AssertNumberOfCalls(t, "Search", 2)
		assert.Contains(t, f.recorder.recorded(), StateDone)
		assert.NotContains(t, f.recorder.recorded(), StateErrored)
	})

	t.Run("both retrievers down still summarizes an empty bundle", func(t *testing.T) {
		f := newPipelineFixture()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("pg down"))
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("neo4j down"))
		f.summarizer.On("Summarize", mock.Anything, mock.MatchedBy(func(b domain.ContextBundle) bool {
			return b.Empty()
		}), mock.Anything).Return(domain.ContextSummary{Text: NoContextSummary}, nil).Once()
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tokenStream(
			domain.StreamToken{Content: "I could not find details on that."},
			domain.StreamToken{Done: true},
		), nil)

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		require.NotEmpty(t, tokens)
		assert.True(t, tokens[len(tokens)-1].Done)
		f.summarizer.AssertExpectations(t)
	})

	t.Run("summarization failure terminates with the apology", func(t *testing.T) {
		f := newPipelineFixture()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{}, errors.New("provider down"))

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		require.Len(t, tokens, 2)
		assert.Equal(t, ApologyFragment, tokens[0].Content)
		assert.True(t, tokens[1].Done)
		assert.Error(t, tokens[1].Err)
		assert.Contains(t, f.recorder.recorded(), StateErrored)
		f.generator.AssertNotCalled(t, "Generate")
	})

	t.Run("stream open failure terminates with the apology", func(t *testing.T) {
		f := newPipelineFixture()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("no capacity"))

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		require.Len(t, tokens, 2)
		assert.Equal(t, ApologyFragment, tokens[0].Content)
		assert.Error(t, tokens[1].Err)
	})

	t.Run("mid-stream provider error is replaced with the apology", func(t *testing.T) {
		f := newPipelineFixture()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tokenStream(
			domain.StreamToken{Content: "The best"},
			domain.StreamToken{Err: errors.New("connection reset"), Done: true},
		), nil)

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		require.NotEmpty(t, tokens)
		last := tokens[len(tokens)-1]
		assert.True(t, last.Done)
		assert.Error(t, last.Err)
		assert.Equal(t, ApologyFragment, tokens[len(tokens)-2].Content)
	})

	t.Run("producer close without terminal token is finished for the caller", func(t *testing.T) {
		f := newPipelineFixture()
		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tokenStream(
			domain.StreamToken{Content: "Half an answer"},
		), nil)

		stream, err := f.pipeline.Ask(ctx, "When should I visit Hanoi?")
		require.NoError(t, err)
		tokens := drain(t, stream)

		require.NotEmpty(t, tokens)
		assert.True(t, tokens[len(tokens)-1].Done)
		assert.NoError(t, tokens[len(tokens)-1].Err)
	})

	t.Run("cancellation releases the pipeline goroutine", func(t *testing.T) {
		f := newPipelineFixture()
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		producer := make(chan domain.StreamToken)
		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)
		f.generator.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(domain.AnswerStream(producer), nil)

		stream, err := f.pipeline.Ask(cancelCtx, "When should I visit Hanoi?")
		require.NoError(t, err)

		producer <- domain.StreamToken{Content: "First"}
		tok := <-stream
		assert.Equal(t, "First", tok.Content)

		cancel()
		close(producer)

		tokens := drain(t, stream)
		for _, tok := range tokens {
			assert.NoError(t, tok.Err, "cancellation must not surface a provider error")
		}
	})

	t.Run("cancelling one request leaves a concurrent request untouched", func(t *testing.T) {
		f := newPipelineFixture()
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		f.semantic.On("Search", mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.graph.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievedPassage{}, nil)
		f.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return(domain.ContextSummary{Text: "summary"}, nil)

		forQuery := func(normalized string) interface{} {
			return mock.MatchedBy(func(q domain.Query) bool { return q.Normalized == normalized })
		}
		doomedProducer := make(chan domain.StreamToken)
		survivorProducer := make(chan domain.StreamToken)
		f.generator.On("Generate", mock.Anything, forQuery("tell me about hanoi"), mock.Anything).Return(domain.AnswerStream(doomedProducer), nil)
		f.generator.On("Generate", mock.Anything, forQuery("tell me about hue"), mock.Anything).Return(domain.AnswerStream(survivorProducer), nil)

		doomed, err := f.pipeline.Ask(cancelCtx, "Tell me about Hanoi")
		require.NoError(t, err)
		survivor, err := f.pipeline.Ask(ctx, "Tell me about Hue")
		require.NoError(t, err)

		// Both requests are mid-stream when the first is cancelled.
		doomedProducer <- domain.StreamToken{Content: "Hanoi"}
		assert.Equal(t, "Hanoi", (<-doomed).Content)
		survivorProducer <- domain.StreamToken{Content: "Hue "}
		assert.Equal(t, "Hue ", (<-survivor).Content)

		cancel()
		close(doomedProducer)
		drain(t, doomed)

		survivorProducer <- domain.StreamToken{Content: "is lovely."}
		survivorProducer <- domain.StreamToken{Done: true}
		close(survivorProducer)

		tokens := drain(t, survivor)
		assert.Equal(t, "is lovely.", streamText(tokens))
		for _, tok := range tokens {
			assert.NoError(t, tok.Err, "cancelling an unrelated request must not surface here")
		}
		require.NotEmpty(t, tokens)
		assert.True(t, tokens[len(tokens)-1].Done)
	})
}
