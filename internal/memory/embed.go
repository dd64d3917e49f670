package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const embedDims = 256

// hashEmbed turns text into a deterministic bag-of-words vector so
// chromem's cosine similarity search can approximate keyword overlap
// without calling out to a real embedding model — Search is explicitly
// best-effort, not semantic.
func hashEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embedDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embedDims]++
	}
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec, nil
	}
	norm := math.Sqrt(sumSquares)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec, nil
}
