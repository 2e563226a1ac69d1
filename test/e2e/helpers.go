//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/wayfarer-labs/wayfarer/internal/api/handlers"
	"github.com/wayfarer-labs/wayfarer/internal/cache"
	"github.com/wayfarer-labs/wayfarer/internal/domain"
	"github.com/wayfarer-labs/wayfarer/internal/server"
	"github.com/wayfarer-labs/wayfarer/internal/service"
)

// E2ETestEnv runs the real router and pipeline over in-memory stores
// and scripted providers, so whole-stack behavior is testable without
// external services.
type E2ETestEnv struct {
	T          *testing.T
	Server     *httptest.Server
	Embedder   *scriptedEmbedder
	Index      *memoryIndex
	Graph      *memoryGraph
	Provider   *scriptedProvider
	HTTPClient *http.Client
}

// SetupE2EEnv wires the full service stack behind an httptest server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	embedder := &scriptedEmbedder{}
	index := &memoryIndex{}
	graphStore := &memoryGraph{facts: make(map[string][]domain.GraphFact)}
	provider := &scriptedProvider{}

	embeddingCache := cache.New(embedder)
	semantic := service.NewSemanticRetriever(embeddingCache, index, 5)
	graphRetriever := service.NewGraphRetriever(graphStore)
	fuser := service.NewFuser(service.DefaultMaxBundleSize)
	summarizer := service.NewSummarizer(provider)
	generator := service.NewAnswerGenerator(provider)

	pipeline := service.NewPipeline(semantic, graphRetriever, fuser, summarizer, generator)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler: handlers.NewChatHandler(pipeline),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &E2ETestEnv{
		T:          t,
		Server:     srv,
		Embedder:   embedder,
		Index:      index,
		Graph:      graphStore,
		Provider:   provider,
		HTTPClient: srv.Client(),
	}
}

// AskChat posts a query to /chat and returns the status, headers and
// fully drained body.
func (env *E2ETestEnv) AskChat(query string) (int, http.Header, string) {
	env.T.Helper()

	body := strings.NewReader(fmt.Sprintf(`{"query":%q}`, query))
	resp, err := env.HTTPClient.Post(env.Server.URL+"/chat", "application/json", body)
	if err != nil {
		env.T.Fatalf("chat request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		env.T.Fatalf("failed to read chat response: %v", err)
	}
	return resp.StatusCode, resp.Header, string(data)
}

// scriptedEmbedder returns a fixed vector per call and counts calls.
type scriptedEmbedder struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (e *scriptedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, fmt.Errorf("embedding provider unavailable")
	}
	// Deterministic toy vector derived from the text length.
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *scriptedEmbedder) Calls() int64 { return e.calls.Load() }

func (e *scriptedEmbedder) SetFailing(failing bool) { e.fail.Store(failing) }

// memoryIndex serves pre-seeded scored passages.
type memoryIndex struct {
	results []service.ScoredPassage
	fail    atomic.Bool
}

func (m *memoryIndex) Seed(results ...service.ScoredPassage) { m.results = results }

func (m *memoryIndex) SetFailing(failing bool) { m.fail.Store(failing) }

func (m *memoryIndex) SearchByEmbedding(ctx context.Context, embedding []float32, topK int) ([]service.ScoredPassage, error) {
	if m.fail.Load() {
		return nil, fmt.Errorf("vector index unavailable")
	}
	if len(m.results) > topK {
		return m.results[:topK], nil
	}
	return m.results, nil
}

// memoryGraph serves facts keyed by entity id.
type memoryGraph struct {
	facts map[string][]domain.GraphFact
	fail  atomic.Bool
}

func (m *memoryGraph) Seed(entityID string, facts ...domain.GraphFact) {
	m.facts[entityID] = facts
}

func (m *memoryGraph) SetFailing(failing bool) { m.fail.Store(failing) }

func (m *memoryGraph) FetchFacts(ctx context.Context, entityIDs []string) ([]domain.GraphFact, error) {
	if m.fail.Load() {
		return nil, fmt.Errorf("graph store unavailable")
	}
	var out []domain.GraphFact
	for _, id := range entityIDs {
		out = append(out, m.facts[id]...)
	}
	return out, nil
}

// scriptedProvider echoes its prompts back in a recognizable way: the
// summary is a digest of the passages it saw, and the answer stream
// tokenizes the summary.
type scriptedProvider struct {
	failSummary  atomic.Bool
	lastSummary  atomic.Value
	summaryCalls atomic.Int64
}

func (p *scriptedProvider) SetSummaryFailing(failing bool) { p.failSummary.Store(failing) }

func (p *scriptedProvider) SummaryCalls() int64 { return p.summaryCalls.Load() }

// LastSummaryPrompt returns the user content of the most recent
// summarization request.
func (p *scriptedProvider) LastSummaryPrompt() string {
	if v := p.lastSummary.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (p *scriptedProvider) Complete(ctx context.Context, turns []domain.ConversationTurn, maxTokens int) (string, error) {
	p.summaryCalls.Add(1)
	if p.failSummary.Load() {
		return "", fmt.Errorf("chat provider unavailable")
	}

	user := turns[len(turns)-1].Content
	p.lastSummary.Store(user)

	if strings.Contains(user, "(no passages were retrieved)") {
		return service.NoContextSummary, nil
	}
	return "SUMMARY: " + firstLineOfContext(user), nil
}

func (p *scriptedProvider) CompleteStream(ctx context.Context, turns []domain.ConversationTurn, maxTokens int) (domain.AnswerStream, error) {
	user := turns[len(turns)-1].Content

	out := make(chan domain.StreamToken, 8)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(answerSeed(user)) {
			select {
			case out <- domain.StreamToken{Content: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		out <- domain.StreamToken{Done: true}
	}()
	return out, nil
}

// firstLineOfContext extracts the first context bullet from a summary
// prompt so tests can assert retrieved content flowed through.
func firstLineOfContext(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- [") {
			return line
		}
	}
	return "(empty)"
}

// answerSeed picks the summary text back out of the answer prompt.
func answerSeed(prompt string) string {
	const marker = "Review this context summary: "
	if idx := strings.Index(prompt, marker); idx >= 0 {
		rest := prompt[idx+len(marker):]
		if end := strings.Index(rest, "\n"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	return "ANSWER"
}
