package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "health_agents_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	AgentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "health_agents_agent_duration_seconds",
			Help:    "Duration of each pipeline agent step",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent", "mode"},
	)

	PipelineFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "health_agents_pipeline_fallbacks_total",
			Help: "Pipeline runs that fell back to the local agents after an LLM failure",
		},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "health_agents_retrieval_results_count",
			Help:    "Number of passages returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
		[]string{"backend"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_llm_requests_total",
			Help: "LLM requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "health_agents_feedback_rating",
			Help:    "User feedback ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_feedback_total",
			Help: "Feedback submissions by outcome",
		},
		[]string{"status"},
	)

	ReflectionScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "health_agents_reflection_overall_score",
			Help:    "Overall reflection scores of produced summaries",
			Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_agents_active_sessions",
			Help: "Sessions currently live",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "health_agents_sessions_expired_total",
			Help: "Sessions evicted after inactivity",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_agents_documents_processed_total",
			Help: "Total documents processed by ingestion",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(AgentDuration)
		prometheus.MustRegister(PipelineFallbacks)
		prometheus.MustRegister(RetrievalResults)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(LLMRequests)
		prometheus.MustRegister(FeedbackRating)
		prometheus.MustRegister(FeedbackTotal)
		prometheus.MustRegister(ReflectionScore)
		prometheus.MustRegister(ActiveSessions)
		prometheus.MustRegister(SessionsExpired)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(DocumentsProcessed)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
