package index

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// sparseDim bounds the hashed sparse index space.
const sparseDim = 1 << 20

// EncodeSparse produces the sparse half of a hybrid record: lowercase word
// tokens hashed into a fixed index space, weighted by dampened term
// frequency. Indices come back sorted and unique.
func EncodeSparse(text string) ([]uint32, []float32) {
	counts := make(map[uint32]int)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[h.Sum32()%sparseDim]++
	}
	if len(counts) == 0 {
		return nil, nil
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = float32(1 + math.Log(float64(counts[idx])))
	}
	return indices, values
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
