package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/health-research/backend/internal/models"
)

var ErrEmptyResult = errors.New("pipeline returned no result")

// Result is what a Runner produces: either TextResult or *StructuredResult.
type Result interface {
	isResult()
}

type TextResult struct {
	Text string
}

type StructuredResult struct {
	// Raw is the full sectioned report.
	Raw string
	// Output is the final stage's text.
	Output     string
	Summary    *models.Summary
	Reflection *models.ReflectionReport
	Logs       []string
	Fallback   bool
}

func (TextResult) isResult()        {}
func (*StructuredResult) isResult() {}

// Text extracts the user-facing text: the raw report when present, then the
// final output, then the value's printed form.
func Text(r Result) string {
	switch v := r.(type) {
	case nil:
		return ""
	case TextResult:
		return v.Text
	case *StructuredResult:
		if v == nil {
			return ""
		}
		if v.Raw != "" {
			return v.Raw
		}
		if v.Output != "" {
			return v.Output
		}
		return fmt.Sprintf("%+v", *v)
	default:
		return fmt.Sprint(v)
	}
}

// Runner turns a sanitized query into a Result.
type Runner interface {
	Run(ctx context.Context, query string) (Result, error)
}

type RunnerFunc func(ctx context.Context, query string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, query string) (Result, error) {
	return f(ctx, query)
}
