// Package pipeline answers data questions with a fixed sequence of stages:
// Planning, Generating, Validating, Executing, Reporting, Done.
//
// Every failure inside a stage becomes the input of Reporting, so a run
// always ends with a reply. The only early exit is cancellation, which is
// checked between stages.
package pipeline

import (
	"context"
	"log"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/tools"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs a validated statement.
type Executor interface {
	Execute(ctx context.Context, statement string) database.Result
}

type Pipeline struct {
	llm      llm.LLMProvider
	catalog  *catalog.Catalog
	executor Executor
	dialect  string
	tracer   trace.Tracer
	logger   *log.Logger
}

func New(provider llm.LLMProvider, cat *catalog.Catalog, executor Executor, dialect string, logger *log.Logger) *Pipeline {
	if dialect == "" {
		dialect = "SQL"
	}
	return &Pipeline{
		llm:      provider,
		catalog:  cat,
		executor: executor,
		dialect:  dialect,
		tracer:   otel.Tracer("db-agent-be/pipeline"),
		logger:   logger,
	}
}

// Run drives one question through the stages and returns the reply text.
// Progress is reported to sink as thinking chunks. The returned error is
// non-nil only when the turn was cancelled or the consumer went away.
func (p *Pipeline) Run(ctx context.Context, query string, sink stream.Sink) (string, error) {
	t := &turn{query: query, stage: Planning}
	p.logger.Printf("[PIPELINE] Starting for query: %s", truncate(query, 60))

	for t.stage != Done {
		if err := ctx.Err(); err != nil {
			p.logger.Printf("[PIPELINE] Cancelled before %s", t.stage)
			return "", apperrors.Wrap(apperrors.Stream, "turn cancelled", err)
		}

		stageCtx, span := p.tracer.Start(ctx, "pipeline."+t.stage.String(),
			trace.WithAttributes(attribute.Int("pipeline.retries", t.retries)))
		next, err := p.step(stageCtx, t, sink)
		span.End()
		if err != nil {
			return "", err
		}

		p.logger.Printf("[PIPELINE] %s -> %s", t.stage, next)
		t.stage = next
	}

	return t.reply, nil
}

func (p *Pipeline) step(ctx context.Context, t *turn, sink stream.Sink) (Stage, error) {
	switch t.stage {
	case Planning:
		return p.plan(ctx, t, sink)
	case Generating:
		return p.generate(ctx, t)
	case Validating:
		return p.validate(ctx, t, sink)
	case Executing:
		return p.execute(ctx, t, sink)
	case Reporting:
		return p.report(ctx, t)
	default:
		return Done, nil
	}
}

func (p *Pipeline) execute(ctx context.Context, t *turn, sink stream.Sink) (Stage, error) {
	if err := sink.Thinking(ctx, tools.ExecuteSQLName, t.statement.Raw); err != nil {
		return Done, err
	}

	t.result = p.executor.Execute(ctx, t.statement.Raw)
	if t.result.Err != nil {
		if ctx.Err() != nil {
			return Done, apperrors.Wrap(apperrors.Stream, "turn cancelled", ctx.Err())
		}
		return t.fail(t.result.Err), nil
	}
	return Reporting, nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
