package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

// Client is the audit log: every response, every accepted feedback and the
// documents loaded into the knowledge base.
type Client struct {
	db *sql.DB
}

type ResponseRecord struct {
	ResponseID    string    `json:"response_id"`
	QueryID       string    `json:"query_id"`
	SessionID     string    `json:"session_id"`
	QueryText     string    `json:"query_text"`
	Status        string    `json:"status"`
	ExecutionTime float64   `json:"execution_time"`
	ResultText    string    `json:"result_text"`
	ErrorMessage  string    `json:"error_message"`
	SummaryID     string    `json:"summary_id,omitempty"`
	OverallScore  *float64  `json:"overall_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type FeedbackStats struct {
	Count                int     `json:"count"`
	AverageRating        float64 `json:"average_rating"`
	ImprovementRequested int     `json:"improvement_requested"`
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// go-sqlite3 connections do not share an in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		session_id TEXT,
		query_text TEXT NOT NULL,
		status TEXT NOT NULL,
		execution_time REAL NOT NULL,
		result_text TEXT,
		error_message TEXT,
		summary_id TEXT,
		overall_score REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id);
	CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		summary_id TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comments TEXT,
		improvement_requested INTEGER NOT NULL DEFAULT 0,
		specific_concerns TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_summary ON feedback(summary_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		source TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// RecordResponse stores the outcome of one query, failed ones included.
func (c *Client) RecordResponse(ctx context.Context, resp *models.Response) error {
	var resultText string
	if len(resp.AgentLogs) > 0 {
		resultText = resp.AgentLogs[0]
	}

	var summaryID sql.NullString
	if resp.Summary != nil {
		summaryID = sql.NullString{String: resp.Summary.SummaryID, Valid: true}
	}
	var overall sql.NullFloat64
	if resp.Reflection != nil {
		overall = sql.NullFloat64{Float64: resp.Reflection.OverallScore(), Valid: true}
	}

	_, err := sq.Insert("responses").
		Columns("id", "query_id", "session_id", "query_text", "status", "execution_time",
			"result_text", "error_message", "summary_id", "overall_score", "created_at").
		Values(resp.ResponseID, resp.Query.QueryID, resp.Query.SessionID, resp.Query.Text,
			string(resp.Status), resp.ExecutionTime, resultText, resp.ErrorMessage,
			summaryID, overall, time.Now().UnixMilli()).
		RunWith(c.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	logger.Debug("Response recorded",
		zap.String("response_id", resp.ResponseID),
		zap.String("status", string(resp.Status)),
	)
	return nil
}

func (c *Client) RecordFeedback(ctx context.Context, sessionID string, fb models.Feedback) error {
	concerns, err := json.Marshal(fb.SpecificConcerns)
	if err != nil {
		return fmt.Errorf("failed to marshal concerns: %w", err)
	}

	improvement := 0
	if fb.ImprovementRequested {
		improvement = 1
	}

	_, err = sq.Insert("feedback").
		Columns("id", "session_id", "summary_id", "rating", "comments",
			"improvement_requested", "specific_concerns", "created_at").
		Values(fb.FeedbackID, sessionID, fb.SummaryID, fb.Rating, fb.Comments,
			improvement, string(concerns), fb.Timestamp.UnixMilli()).
		RunWith(c.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Debug("Feedback recorded", zap.String("feedback_id", fb.FeedbackID), zap.Int("rating", fb.Rating))
	return nil
}

// UpsertDocument records a knowledge-base document or chunk; re-ingesting the
// same id replaces its content.
func (c *Client) UpsertDocument(ctx context.Context, doc models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	parent, _ := doc.Metadata["parent_id"].(string)
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = sq.Insert("documents").
		Columns("id", "parent_id", "source", "content", "metadata", "created_at", "updated_at").
		Values(doc.DocID, parent, doc.Source, doc.Content, string(meta), created.UnixMilli(), time.Now().UnixMilli()).
		Suffix("ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, source = excluded.source, updated_at = excluded.updated_at").
		RunWith(c.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

func (c *Client) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := sq.Select("COUNT(*)").From("documents").
		RunWith(c.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// ListResponses returns the recorded responses of a session, oldest first.
func (c *Client) ListResponses(ctx context.Context, sessionID string, limit int) ([]ResponseRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := sq.Select("id", "query_id", "session_id", "query_text", "status", "execution_time",
		"result_text", "error_message", "summary_id", "overall_score", "created_at").
		From("responses").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "rowid ASC").
		Limit(uint64(limit)).
		RunWith(c.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	records := []ResponseRecord{}
	for rows.Next() {
		var (
			r                        ResponseRecord
			session, result, errMsg  sql.NullString
			summaryID                sql.NullString
			overall                  sql.NullFloat64
			createdAt                int64
		)
		if err := rows.Scan(&r.ResponseID, &r.QueryID, &session, &r.QueryText, &r.Status,
			&r.ExecutionTime, &result, &errMsg, &summaryID, &overall, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		r.SessionID = session.String
		r.ResultText = result.String
		r.ErrorMessage = errMsg.String
		r.SummaryID = summaryID.String
		if overall.Valid {
			score := overall.Float64
			r.OverallScore = &score
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate responses: %w", err)
	}
	return records, nil
}

func (c *Client) FeedbackStats(ctx context.Context) (FeedbackStats, error) {
	var (
		stats       FeedbackStats
		avg         sql.NullFloat64
		improvement sql.NullInt64
	)
	err := sq.Select("COUNT(*)", "AVG(rating)", "SUM(improvement_requested)").
		From("feedback").
		RunWith(c.db).
		QueryRowContext(ctx).
		Scan(&stats.Count, &avg, &improvement)
	if err != nil {
		return FeedbackStats{}, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	stats.AverageRating = avg.Float64
	stats.ImprovementRequested = int(improvement.Int64)
	return stats, nil
}
