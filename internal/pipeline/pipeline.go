package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/internal/retrieval"
	"github.com/health-research/backend/pkg/logger"
)

const EmptyQueryMessage = "Please enter a health-related question to begin."

type Config struct {
	// Completer drives the LLM stages. Nil runs the templated stages only.
	Completer llm.Completer
	Retriever retrieval.Retriever
	TopK      int
	Clock     clockwork.Clock
}

type stages struct {
	planner    *PlannerAgent
	search     *SearchAgent
	summarizer *SummarizerAgent
	reflector  *ReflectiveAgent
}

func newStages(client llm.Completer, cfg Config) *stages {
	return &stages{
		planner:    NewPlannerAgent(client),
		search:     NewSearchAgent(client, cfg.Retriever, cfg.TopK),
		summarizer: NewSummarizerAgent(client),
		reflector:  NewReflectiveAgent(client, cfg.Clock),
	}
}

// Pipeline runs plan, search, summarize and reflect in order. When the LLM
// stages fail it reruns the query through the templated stages.
type Pipeline struct {
	llmStages *stages
	fallback  *stages
	topK      int
	clock     clockwork.Clock
}

func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}

	p := &Pipeline{
		fallback: newStages(nil, cfg),
		topK:     cfg.TopK,
		clock:    cfg.Clock,
	}
	if cfg.Completer != nil {
		p.llmStages = newStages(cfg.Completer, cfg)
	}
	return p
}

func (p *Pipeline) Mode() string {
	if p.llmStages != nil {
		return modeLLM
	}
	return modeFallback
}

// Agents lists the stages that serve requests, in execution order.
func (p *Pipeline) Agents() []Agent {
	s := p.fallback
	if p.llmStages != nil {
		s = p.llmStages
	}
	return []Agent{s.planner, s.search, s.summarizer, s.reflector}
}

func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return TextResult{Text: EmptyQueryMessage}, nil
	}

	activity := NewActivityLog(p.clock)

	if p.llmStages == nil {
		return p.runStages(ctx, p.fallback, query, activity)
	}

	res, err := p.runStages(ctx, p.llmStages, query, activity)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("failed to run pipeline: %w", ctxErr)
	}

	logger.Warn("LLM pipeline failed, falling back to templated agents", zap.Error(err))
	metrics.PipelineFallbacks.Inc()

	res, ferr := p.runStages(ctx, p.fallback, query, activity)
	if ferr != nil {
		return nil, fmt.Errorf("failed to run fallback pipeline: %w", ferr)
	}
	res.Raw = fallbackHeader(err) + res.Raw
	res.Fallback = true
	return res, nil
}

func (p *Pipeline) runStages(ctx context.Context, s *stages, query string, activity *ActivityLog) (*StructuredResult, error) {
	var (
		plan, searchText, summaryText, reflectionText string
		passages                                      []retrieval.Passage
		report                                        models.ReflectionReport
	)

	err := p.step(activity, s.planner.base, func() (err error) {
		plan, err = s.planner.Process(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.step(activity, s.search.base, func() (err error) {
		passages, err = s.search.Retrieve(ctx, query)
		if err != nil {
			return err
		}
		searchText, err = s.search.Compose(ctx, query, passages)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.step(activity, s.summarizer.base, func() (err error) {
		summaryText, err = s.summarizer.Process(ctx, searchText)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.step(activity, s.reflector.base, func() (err error) {
		reflectionText, report, err = s.reflector.Reflect(ctx, summaryText)
		return err
	})
	if err != nil {
		return nil, err
	}

	sourceDocs := make([]string, len(passages))
	for i, ps := range passages {
		sourceDocs[i] = ps.DocID
	}
	confidence := float64(len(passages)) / float64(p.topK)

	summary := models.NewSummary(uuid.NewString(), summaryText, sourceDocs, confidence, p.clock.Now())
	report.SummaryID = summary.SummaryID
	metrics.ReflectionScore.Observe(report.OverallScore())

	return &StructuredResult{
		Raw:        compose(plan, searchText, summaryText, reflectionText),
		Output:     reflectionText,
		Summary:    summary,
		Reflection: &report,
		Logs:       activity.Entries(),
	}, nil
}

func (p *Pipeline) step(activity *ActivityLog, agent base, fn func() error) error {
	activity.Record(agent.name, "Executing task")
	start := time.Now()

	err := fn()

	metrics.AgentDuration.WithLabelValues(agent.name, agent.mode()).Observe(time.Since(start).Seconds())
	if err != nil {
		activity.Record(agent.name, "Task failed: "+err.Error())
		return fmt.Errorf("%s: %w", agent.name, err)
	}
	activity.Record(agent.name, "Task completed successfully")
	return nil
}

func compose(plan, search, summary, reflection string) string {
	return strings.Join([]string{
		"=== PLAN ===",
		plan,
		"",
		"=== RETRIEVED CONTENT ===",
		search,
		"",
		"=== SUMMARY ===",
		summary,
		"",
		"=== REFLECTION ===",
		reflection,
	}, "\n")
}

func fallbackHeader(reason error) string {
	return "Language-model pipeline execution failed or is not fully configured.\n" +
		fmt.Sprintf("Reason: %v\n\n", reason) +
		"Falling back to simplified pipeline:\n\n"
}
