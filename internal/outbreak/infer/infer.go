// Package infer holds the two external collaborators GenerateSymptomReport
// delegates to (spec.md §1 marks both "out of scope... treated as
// opaque providers of a (symptom-map, cause) tuple and a fixed-dimension
// real vector"): a SymptomInferer that turns free text into symptoms
// and a likely cause, and an Embedder that turns a summary string into
// a semantic embedding. Both are interfaces so a real LLM-backed
// implementation can be swapped in without touching the pipeline.
package infer

import (
	"context"
	"sort"
	"strings"
)

// EmbeddingDimension is the fixed vector length every Embedder must
// return, per spec.md §1's "fixed-dimension real vector, 768".
const EmbeddingDimension = 768

// SymptomInferer infers symptoms and a likely cause from free text.
// success=false (with a nil error) means the provider could not infer
// anything from the text; it is not a transport failure.
type SymptomInferer interface {
	Infer(ctx context.Context, text string) (symptoms map[string]int, cause string, success bool, err error)
}

// Embedder turns a symptom-and-cause summary into a semantic embedding
// of EmbeddingDimension entries.
type Embedder interface {
	Embed(ctx context.Context, summary string) ([]float64, error)
}

var intensityLevels = map[int]string{
	1: "mild",
	2: "moderate",
	3: "severe",
}

// GenerateSummary renders symptoms and cause into the text an Embedder
// embeds, in the format "intensity symptom, intensity symptom, ...: cause",
// symptoms sorted by name for a deterministic summary across runs.
func GenerateSummary(symptoms map[string]int, cause string) string {
	names := make([]string, 0, len(symptoms))
	for name := range symptoms {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, intensityLevels[symptoms[name]]+" "+name)
	}
	return strings.Join(parts, ", ") + ": " + cause
}
