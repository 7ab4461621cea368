// Package embedding scores query/candidate similarity with vectors from
// an OpenAI-compatible embeddings endpoint. The Client batches inputs,
// keeps inside a requests-per-minute budget, retries transient failures,
// and degrades to deterministic locally generated vectors when the
// provider is unreachable, so callers always get vectors back.
package embedding

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Embedding is one vector returned by Embed, in input order.
type Embedding struct {
	Vector []float32
	// Normalized reports whether Vector is unit length.
	Normalized bool
	// Fallback reports whether Vector was generated locally rather than
	// by the provider.
	Fallback bool
}

// Cosine returns the cosine similarity of two vectors. Mismatched
// dimensions or a zero-magnitude vector yield 0 rather than an error:
// such pairs carry no usable signal and must never rank above real
// matches.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales vec to unit length in place. Zero vectors are left
// unchanged.
func Normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// HashText returns the hex BLAKE2b-256 digest of text. It keys both the
// in-memory memo and the persistent vector store, so cached vectors are
// reused only for byte-identical text.
func HashText(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// fallbackVector derives a unit-length vector of the given dimension
// deterministically from the text. A BLAKE2b XOF stream gives every
// dimension an independent value in [-1, 1], so distinct texts land in
// distinct directions and repeated runs produce identical vectors.
func fallbackVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
	if err != nil {
		// Reachable only with an oversized key, and we pass none.
		panic(err)
	}
	xof.Write([]byte(text))

	vec := make([]float32, dim)
	var buf [4]byte
	for i := range vec {
		if _, err := io.ReadFull(xof, buf[:]); err != nil {
			panic(err)
		}
		u := binary.LittleEndian.Uint32(buf[:])
		vec[i] = float32(u)/float32(math.MaxUint32)*2 - 1
	}
	Normalize(vec)
	return vec
}

func copyVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
