package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashQuery_NormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := HashQuery("What are the symptoms of diabetes?")
	b := HashQuery("  what ARE the   symptoms of\tdiabetes? ")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.NotEqual(t, a, HashQuery("What causes diabetes?"))
}
