package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/models"
)

func TestSplitIntoWords(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		[]string{"===", "PLAN", "===", "\n", "Plan", "for", "query"},
		splitIntoWords("=== PLAN ===\nPlan  for query"),
	)
	require.Empty(t, splitIntoWords(""))
}

func TestDecodeRating(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(4), decodeRating(json.RawMessage("4")))
	require.Equal(t, 4.5, decodeRating(json.RawMessage("4.5")))
	require.Equal(t, "4", decodeRating(json.RawMessage(`"4"`)))
	require.Nil(t, decodeRating(nil))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	q := models.NewQuery("q", "text", "s", time.Now())

	ok := models.NewResponse("r", q)
	ok.Status = models.StatusCompleted
	require.Equal(t, 200, statusFor(ok))

	require.Equal(t, 422, statusFor(models.NewResponse("r", q).Fail(controller.InvalidQueryMessage)))
	require.Equal(t, 422, statusFor(models.NewResponse("r", q).Fail(controller.InvalidRatingMessage)))
	require.Equal(t, 500, statusFor(models.NewResponse("r", q).Fail("Error processing query: boom")))
}
