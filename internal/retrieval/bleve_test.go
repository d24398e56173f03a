package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/health-research/backend/internal/models"
)

var healthDocs = []models.Document{
	{
		DocID:   "doc1",
		Content: "Influenza (flu) is a contagious respiratory illness caused by influenza viruses. Common symptoms include fever, cough, sore throat, runny or stuffy nose, muscle or body aches, headaches and fatigue.",
		Source:  "seed",
	},
	{
		DocID:   "doc2",
		Content: "Hand hygiene, such as washing hands with soap and water for at least 20 seconds, is one of the most effective ways to prevent many infectious diseases.",
		Source:  "seed",
	},
	{
		DocID:   "doc3",
		Content: "Vaccination is a safe and effective way to prevent many serious diseases. Side effects are usually mild and temporary, such as soreness at the injection site or low-grade fever.",
		Source:  "seed",
	},
}

func TestBleveRetriever_SearchRanksRelevantDocument(t *testing.T) {
	t.Parallel()

	r, err := NewBleveRetriever("")
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Index(ctx, healthDocs))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, err := r.Search(ctx, "What are the symptoms of influenza?", 2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, "doc1", got[0].DocID)
	require.Contains(t, got[0].Content, "respiratory illness")
	require.Equal(t, "seed", got[0].Source)

	got, err = r.Search(ctx, "washing hands with soap", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "doc2", got[0].DocID)
}

func TestBleveRetriever_NoMatchesAndEmptyQuery(t *testing.T) {
	t.Parallel()

	r, err := NewBleveRetriever("")
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Index(ctx, healthDocs))

	got, err := r.Search(ctx, "quantum chromodynamics", 4)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = r.Search(ctx, "   ", 4)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBleveRetriever_PersistentIndexSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb.bleve")
	ctx := context.Background()

	r, err := NewBleveRetriever(path)
	require.NoError(t, err)
	require.NoError(t, r.Index(ctx, healthDocs))
	require.NoError(t, r.Close())

	reopened, err := NewBleveRetriever(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Search(ctx, "vaccination side effects", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "doc3", got[0].DocID)
	require.Contains(t, got[0].Content, "Vaccination")
}

func TestNop_FindsNothing(t *testing.T) {
	t.Parallel()

	var r Retriever = Nop{}
	got, err := r.Search(context.Background(), "flu", 4)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, r.Index(context.Background(), healthDocs))
	require.Equal(t, BackendNone, r.Backend())
}
