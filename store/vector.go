package store

import (
	"encoding/binary"
	"log"
	"math"
	"sort"
)

// CosineSimilarity returns dot(a,b)/(|a||b|). Mismatched lengths, empty
// vectors and zero norms all yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// EncodeEmbedding packs v as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks little-endian float32 values. A length that is not
// a multiple of 4 is logged and yields an empty vector.
func DecodeEmbedding(b []byte) []float32 {
	if len(b)%4 != 0 {
		log.Printf("Invalid embedding blob length %d (not a multiple of 4)", len(b))
		return []float32{}
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// rankResults filters by minScore, sorts by score descending with ties broken
// by path, and truncates to topK.
func rankResults(results []SearchResult, topK int, minScore float32) []SearchResult {
	if topK <= 0 {
		return []SearchResult{}
	}

	kept := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			kept = append(kept, r)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Path < kept[j].Path
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

// unixSeconds converts a float seconds-since-epoch value to time.
func unixSeconds(secs float64) (sec int64, nsec int64) {
	whole := math.Floor(secs)
	return int64(whole), int64((secs - whole) * 1e9)
}
