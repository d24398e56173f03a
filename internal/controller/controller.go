package controller

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/internal/pipeline"
	"github.com/health-research/backend/internal/session"
	"github.com/health-research/backend/internal/validation"
	"github.com/health-research/backend/pkg/logger"
)

const (
	InvalidQueryMessage   = "Invalid query. Please check length and content."
	InvalidRatingMessage  = "Invalid rating. Must be between 1 and 5."
	InvalidCommentMessage = "Invalid feedback comment."

	DefaultPipelineTimeout = 90 * time.Second
)

// Recorder keeps an audit trail of answered queries and accepted feedback.
type Recorder interface {
	RecordResponse(ctx context.Context, resp *models.Response) error
	RecordFeedback(ctx context.Context, sessionID string, fb models.Feedback) error
}

// ResummarizeHook is invoked for feedback that asks for an improved summary.
type ResummarizeHook func(ctx context.Context, sessionID string, fb models.Feedback) error

type Config struct {
	Validator   *validation.Validator
	Sessions    *session.Store
	Runner      pipeline.Runner
	Timeout     time.Duration
	Clock       clockwork.Clock
	Recorder    Recorder
	Resummarize ResummarizeHook
}

// Controller sits between the transport and the agents. Every failure is
// reported inside the returned Response; nothing is returned as an error.
type Controller struct {
	validator   *validation.Validator
	sessions    *session.Store
	runner      pipeline.Runner
	timeout     time.Duration
	clock       clockwork.Clock
	recorder    Recorder
	resummarize ResummarizeHook
	ready       atomic.Bool
}

func New(cfg Config) *Controller {
	if cfg.Validator == nil {
		cfg.Validator = validation.New(validation.DefaultMinLength, validation.DefaultMaxLength)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewStore(session.Config{Clock: cfg.Clock})
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.New(pipeline.Config{Clock: cfg.Clock})
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPipelineTimeout
	}

	return &Controller{
		validator:   cfg.Validator,
		sessions:    cfg.Sessions,
		runner:      cfg.Runner,
		timeout:     cfg.Timeout,
		clock:       cfg.Clock,
		recorder:    cfg.Recorder,
		resummarize: cfg.Resummarize,
	}
}

func (c *Controller) Initialize() {
	c.ready.Store(true)
	logger.Info("System controller initialized successfully")
}

func (c *Controller) Ready() bool {
	return c.ready.Load()
}

func (c *Controller) Sessions() *session.Store {
	return c.sessions
}

// HandleQuery validates text, records it in the session and runs the agent
// pipeline. An empty, unknown or expired sessionID starts a new session.
func (c *Controller) HandleQuery(ctx context.Context, text, sessionID string) *models.Response {
	start := c.clock.Now()
	sessionID = c.resolveSession(sessionID)

	queryID := uuid.NewString()
	responseID := uuid.NewString()

	if !c.validator.ValidateQuery(text) {
		resp := models.NewResponse(responseID, models.NewQuery(queryID, text, sessionID, start)).Fail(InvalidQueryMessage)
		return c.finish(ctx, resp, start)
	}

	sanitized := c.validator.SanitizeInput(text)
	query := models.NewQuery(queryID, sanitized, sessionID, start)
	c.sessions.UpdateSession(sessionID, &query, nil)

	resp := models.NewResponse(responseID, query)
	resp.Status = models.StatusProcessing

	result, err := c.runPipeline(ctx, sanitized)
	if err != nil {
		logger.Error("Failed to process query",
			zap.String("query_id", queryID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return c.finish(ctx, resp.Fail(fmt.Sprintf("Error processing query: %s", err)), start)
	}

	resp.Status = models.StatusCompleted
	resp.AgentLogs = []string{pipeline.Text(result)}
	if sr, ok := result.(*pipeline.StructuredResult); ok {
		resp.Summary = sr.Summary
		resp.Reflection = sr.Reflection
		resp.AgentLogs = append(resp.AgentLogs, sr.Logs...)
	}

	return c.finish(ctx, resp, start)
}

// HandleFeedback validates and stores feedback on a summary. It never
// re-runs the pipeline.
func (c *Controller) HandleFeedback(ctx context.Context, summaryID string, rating any, comments string, improvementRequested bool, sessionID string) *models.Response {
	responseID := uuid.NewString()
	empty := models.NewQuery("", "", "", time.Time{})

	if !c.validator.ValidateRating(rating) {
		metrics.FeedbackTotal.WithLabelValues("rejected").Inc()
		return models.NewResponse(responseID, empty).Fail(InvalidRatingMessage)
	}
	if comments != "" && !c.validator.ValidateFeedbackComment(comments) {
		metrics.FeedbackTotal.WithLabelValues("rejected").Inc()
		return models.NewResponse(responseID, empty).Fail(InvalidCommentMessage)
	}

	fb := models.Feedback{
		FeedbackID:           uuid.NewString(),
		SummaryID:            summaryID,
		Rating:               ratingValue(rating),
		Comments:             comments,
		Timestamp:            c.clock.Now(),
		ImprovementRequested: improvementRequested,
		SpecificConcerns:     []string{},
	}

	if sessionID != "" && !c.sessions.UpdateSession(sessionID, nil, &fb) {
		logger.Warn("Feedback for unknown or expired session", zap.String("session_id", sessionID))
	}

	metrics.FeedbackTotal.WithLabelValues("accepted").Inc()
	metrics.FeedbackRating.Observe(float64(fb.Rating))

	if c.recorder != nil {
		if err := c.recorder.RecordFeedback(ctx, sessionID, fb); err != nil {
			logger.Warn("Failed to record feedback", zap.String("feedback_id", fb.FeedbackID), zap.Error(err))
		}
	}

	if improvementRequested && c.resummarize != nil {
		if err := c.resummarize(ctx, sessionID, fb); err != nil {
			logger.Warn("Re-summarization failed", zap.String("summary_id", summaryID), zap.Error(err))
		}
	}

	resp := models.NewResponse(responseID, empty)
	resp.Status = models.StatusCompleted
	resp.AgentLogs = feedbackLogs(fb)
	return resp
}

func (c *Controller) GetSessionState(sessionID string) models.History {
	return c.sessions.SessionHistory(sessionID)
}

func (c *Controller) CleanupSessions() int {
	removed := c.sessions.CleanupExpired()
	if removed > 0 {
		logger.Info("Expired sessions cleaned up", zap.Int("removed", removed))
	}
	return removed
}

func (c *Controller) ActiveSessions() int {
	n := c.sessions.ActiveSessionCount()
	metrics.ActiveSessions.Set(float64(n))
	return n
}

func (c *Controller) resolveSession(id string) string {
	if id != "" {
		if _, ok := c.sessions.GetSession(id); ok {
			return id
		}
		logger.Debug("Session not found, starting a new one", zap.String("session_id", id))
	}
	return c.sessions.CreateSession()
}

// runPipeline bounds the run by the configured timeout even if the runner
// ignores its context.
func (c *Controller) runPipeline(ctx context.Context, query string) (pipeline.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		res pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
				done <- outcome{err: fmt.Errorf("pipeline panicked: %v", r)}
			}
		}()
		res, err := c.runner.Run(ctx, query)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pipeline timed out after %s", c.timeout)
		}
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.res == nil {
			return nil, pipeline.ErrEmptyResult
		}
		return o.res, nil
	}
}

func (c *Controller) finish(ctx context.Context, resp *models.Response, start time.Time) *models.Response {
	elapsed := c.clock.Since(start)
	resp.ExecutionTime = elapsed.Seconds()

	status := string(resp.Status)
	metrics.QueryTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(status).Observe(resp.ExecutionTime)

	if c.recorder != nil {
		if err := c.recorder.RecordResponse(ctx, resp); err != nil {
			logger.Warn("Failed to record response", zap.String("response_id", resp.ResponseID), zap.Error(err))
		}
	}

	logger.Info("Query handled",
		zap.String("response_id", resp.ResponseID),
		zap.String("session_id", resp.Query.SessionID),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	)
	return resp
}

func feedbackLogs(fb models.Feedback) []string {
	comments := "No comments provided"
	if fb.Comments != "" {
		comments = "Comments: " + fb.Comments
	}
	improvement := "No improvement requested"
	if fb.ImprovementRequested {
		improvement = "Improvement requested"
	}
	return []string{
		fmt.Sprintf("Feedback received (Rating: %d/5)", fb.Rating),
		comments,
		improvement,
	}
}

// ratingValue converts a rating that already passed ValidateRating.
func ratingValue(rating any) int {
	v := reflect.ValueOf(rating)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(v.Uint())
	}
	return 0
}
