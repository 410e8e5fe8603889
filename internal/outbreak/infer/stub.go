package infer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

var severityWords = map[string]int{
	"mild":     1,
	"slight":   1,
	"moderate": 2,
	"severe":   3,
	"high":     3,
	"intense":  3,
}

// DeterministicInferer is a dependency-free stand-in for the real
// text-to-symptoms LLM collaborator: every comma-separated clause of
// the report text is treated as "[severity] symptom", with severity
// defaulting to moderate when no recognized qualifier is present. It
// exists so the pipeline and its tests can exercise
// GenerateSymptomReport end to end without a network call; a real
// deployment wires infer.SymptomInferer to an actual model instead.
type DeterministicInferer struct {
	Cause string
}

// Infer implements SymptomInferer.
func (d DeterministicInferer) Infer(_ context.Context, text string) (map[string]int, string, bool, error) {
	clauses := strings.Split(text, ",")
	symptoms := make(map[string]int)
	for _, clause := range clauses {
		words := strings.Fields(strings.ToLower(strings.TrimSpace(clause)))
		if len(words) == 0 {
			continue
		}
		severity := 2
		nameWords := words
		if lvl, ok := severityWords[words[0]]; ok {
			severity = lvl
			nameWords = words[1:]
		}
		if len(nameWords) == 0 {
			continue
		}
		name := strings.Join(nameWords, " ")
		symptoms[name] = severity
	}
	if len(symptoms) == 0 {
		return nil, "", false, nil
	}
	cause := d.Cause
	if cause == "" {
		cause = "unknown"
	}
	return symptoms, cause, true, nil
}

// DeterministicEmbedder is a dependency-free stand-in for the real
// embedding-model collaborator: it hashes the summary into a
// reproducible 768-dimension unit vector via repeated SHA-256, so the
// same summary always embeds to the same point and unrelated summaries
// scatter across the sphere. It exists purely so clustering and
// forecasting logic can be exercised deterministically in tests; a
// real deployment wires infer.Embedder to an actual embedding model.
type DeterministicEmbedder struct{}

// Embed implements Embedder. Each hash block yields 8 dimensions
// (32 bytes / 4-byte uint32s); blocks chain by rehashing the previous
// block so dimension 768 needs 96 independent hashes rather than one
// repeated 32-byte window.
func (DeterministicEmbedder) Embed(_ context.Context, summary string) ([]float64, error) {
	out := make([]float64, EmbeddingDimension)
	block := sha256.Sum256([]byte(summary))
	const uint32sPerBlock = 8
	for i := 0; i < EmbeddingDimension; i++ {
		slot := i % uint32sPerBlock
		if slot == 0 && i != 0 {
			block = sha256.Sum256(block[:])
		}
		offset := slot * 4
		bits := binary.LittleEndian.Uint32(block[offset : offset+4])
		out[i] = float64(bits)/float64(math.MaxUint32)*2 - 1
	}

	norm := 0.0
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}
