package service

import (
	"context"
	"log"
	"time"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
	"github.com/wayfarer-labs/wayfarer/internal/telemetry"
)

// PipelineState names a stage of one ask request.
type PipelineState string

const (
	StateIdle        PipelineState = "idle"
	StateRetrieving  PipelineState = "retrieving"
	StateFusing      PipelineState = "fusing"
	StateSummarizing PipelineState = "summarizing"
	StateGenerating  PipelineState = "generating"
	StateStreaming   PipelineState = "streaming"
	StateDone        PipelineState = "done"
	StateErrored     PipelineState = "errored"
)

// ApologyFragment terminates a stream whose summarization or generation
// failed. The conversation always receives well-formed terminal content.
const ApologyFragment = "I'm sorry, but I ran into a problem while answering. Please try again later."

const defaultRetryBackoff = 250 * time.Millisecond

// SemanticSearcher is the semantic half of retrieval.
type SemanticSearcher interface {
	Search(ctx context.Context, query domain.Query) ([]domain.RetrievedPassage, error)
}

// GraphSearcher is the graph half of retrieval. Entity hints usually
// come from semantic results; an empty slice lets the retriever derive
// its own.
type GraphSearcher interface {
	Search(ctx context.Context, query domain.Query, entityHints []string) ([]domain.RetrievedPassage, error)
}

// Summarizing compresses a bundle into a summary.
type Summarizing interface {
	Summarize(ctx context.Context, bundle domain.ContextBundle, query domain.Query) (domain.ContextSummary, error)
}

// Generating opens the final answer stream.
type Generating interface {
	Generate(ctx context.Context, query domain.Query, summary domain.ContextSummary) (domain.AnswerStream, error)
}

// PipelineConfig controls orchestration behavior.
type PipelineConfig struct {
	// RetryBackoff is the pause before the single retrieval retry.
	RetryBackoff time.Duration
	// StateHook, when set, observes every state transition. Used by
	// tests and diagnostics; never required for correctness.
	StateHook func(PipelineState)
}

// Pipeline sequences retrieval, fusion, summarization and generation
// for one request. It holds no per-request state between calls and is
// safe for concurrent use.
type Pipeline struct {
	semantic   SemanticSearcher
	graph      GraphSearcher
	fuser      *Fuser
	summarizer Summarizing
	generator  Generating
	cfg        PipelineConfig
}

func NewPipeline(semantic SemanticSearcher, graph GraphSearcher, fuser *Fuser, summarizer Summarizing, generator Generating) *Pipeline {
	return NewPipelineWithConfig(semantic, graph, fuser, summarizer, generator, PipelineConfig{})
}

func NewPipelineWithConfig(semantic SemanticSearcher, graph GraphSearcher, fuser *Fuser, summarizer Summarizing, generator Generating, cfg PipelineConfig) *Pipeline {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Pipeline{
		semantic:   semantic,
		graph:      graph,
		fuser:      fuser,
		summarizer: summarizer,
		generator:  generator,
		cfg:        cfg,
	}
}

// Ask answers one travel question as an incremental stream. The
// returned error covers only request validation; failures inside the
// pipeline surface as terminal stream content instead, so the caller
// always has something to deliver.
func (p *Pipeline) Ask(ctx context.Context, rawQuery string) (domain.AnswerStream, error) {
	query, err := domain.NewQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamToken, 1)
	go p.run(ctx, query, out)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, query domain.Query, out chan<- domain.StreamToken) {
	defer close(out)

	ctx, span := telemetry.StartSpan(ctx, "Pipeline.Ask", telemetry.SpanAttributes{
		Operation: "ask",
	})
	defer span.End()

	p.setState(StateRetrieving)
	semanticResults := p.retrieveSemantic(ctx, query)
	graphResults := p.retrieveGraph(ctx, query, sourceIDs(semanticResults))

	p.setState(StateFusing)
	bundle := p.fuser.Fuse(semanticResults, graphResults)

	p.setState(StateSummarizing)
	summary, err := p.summarizer.Summarize(ctx, bundle, query)
	if err != nil {
		p.fail(ctx, span, out, err)
		return
	}

	p.setState(StateGenerating)
	stream, err := p.generator.Generate(ctx, query, summary)
	if err != nil {
		p.fail(ctx, span, out, err)
		return
	}

	p.setState(StateStreaming)
	for token := range stream {
		if token.Err != nil {
			// Drain the producer before reporting so it can release
			// its provider connection.
			for range stream {
			}
			p.fail(ctx, span, out, domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "answer stream failed", token.Err))
			return
		}

		select {
		case out <- token:
		case <-ctx.Done():
			for range stream {
			}
			p.setState(StateErrored)
			return
		}

		if token.Done {
			p.setState(StateDone)
			return
		}
	}

	// Producer closed without a terminal token; finish the stream anyway.
	select {
	case out <- domain.StreamToken{Done: true}:
	case <-ctx.Done():
	}
	p.setState(StateDone)
}

// retrieveSemantic runs semantic retrieval with one retry. A failure
// degrades to zero results from that source.
func (p *Pipeline) retrieveSemantic(ctx context.Context, query domain.Query) []domain.RetrievedPassage {
	results, err := p.semantic.Search(ctx, query)
	if err != nil {
		backoff(ctx, p.cfg.RetryBackoff)
		results, err = p.semantic.Search(ctx, query)
	}
	if err != nil {
		log.Printf("pipeline: semantic retrieval degraded: %v", err)
		return nil
	}
	return results
}

func (p *Pipeline) retrieveGraph(ctx context.Context, query domain.Query, hints []string) []domain.RetrievedPassage {
	results, err := p.graph.Search(ctx, query, hints)
	if err != nil {
		backoff(ctx, p.cfg.RetryBackoff)
		results, err = p.graph.Search(ctx, query, hints)
	}
	if err != nil {
		log.Printf("pipeline: graph retrieval degraded: %v", err)
		return nil
	}
	return results
}

// fail terminates the stream with a user-visible fragment. The raw
// error reaches logs and telemetry, never the stream content.
func (p *Pipeline) fail(ctx context.Context, span *telemetry.Span, out chan<- domain.StreamToken, err error) {
	log.Printf("pipeline: request failed: %v", err)
	span.SetError(err)
	p.setState(StateErrored)

	select {
	case out <- domain.StreamToken{Content: ApologyFragment}:
	case <-ctx.Done():
		return
	}
	select {
	case out <- domain.StreamToken{Done: true, Err: err}:
	case <-ctx.Done():
	}
}

func (p *Pipeline) setState(state PipelineState) {
	if p.cfg.StateHook != nil {
		p.cfg.StateHook(state)
	}
}

func sourceIDs(passages []domain.RetrievedPassage) []string {
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.SourceID)
	}
	return ids
}

func backoff(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
