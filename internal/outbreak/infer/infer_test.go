package infer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSummarySortsSymptomsByName(t *testing.T) {
	summary := GenerateSummary(map[string]int{"fever": 3, "cough": 1}, "flu")
	assert.Equal(t, "mild cough, severe fever: flu", summary)
}

func TestGenerateSummaryUnknownIntensityRendersEmptyLabel(t *testing.T) {
	summary := GenerateSummary(map[string]int{"rash": 9}, "unknown")
	assert.Equal(t, " rash: unknown", summary)
}

func TestDeterministicInfererParsesSeverityPrefixedClauses(t *testing.T) {
	d := DeterministicInferer{Cause: "flu"}
	symptoms, cause, success, err := d.Infer(context.Background(), "severe fever, mild cough")
	require.NoError(t, err)
	require.True(t, success)
	assert.Equal(t, "flu", cause)
	assert.Equal(t, 3, symptoms["fever"])
	assert.Equal(t, 1, symptoms["cough"])
}

func TestDeterministicInfererDefaultsSeverityWhenNoQualifier(t *testing.T) {
	d := DeterministicInferer{}
	symptoms, cause, success, err := d.Infer(context.Background(), "headache")
	require.NoError(t, err)
	require.True(t, success)
	assert.Equal(t, 2, symptoms["headache"])
	assert.Equal(t, "unknown", cause)
}

func TestDeterministicInfererFailsOnEmptyText(t *testing.T) {
	d := DeterministicInferer{}
	_, _, success, err := d.Infer(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, success)
}

func TestDeterministicEmbedderIsReproducible(t *testing.T) {
	e := DeterministicEmbedder{}
	a, err := e.Embed(context.Background(), "mild fever: flu")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "mild fever: flu")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, EmbeddingDimension)
}

func TestDeterministicEmbedderProducesUnitVector(t *testing.T) {
	e := DeterministicEmbedder{}
	v, err := e.Embed(context.Background(), "severe cough: bronchitis")
	require.NoError(t, err)

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestDeterministicEmbedderDiffersForDifferentSummaries(t *testing.T) {
	e := DeterministicEmbedder{}
	a, err := e.Embed(context.Background(), "mild fever: flu")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "severe rash: measles")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
