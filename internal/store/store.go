// Package store persists the evidence catalog and verification results.
// SQLite serves single-node deployments with FTS5 keyword search and an
// in-process vector scan; Postgres serves shared deployments with
// tsvector keyword search and an external vector index.
package store

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// maxQueryTerms bounds the number of OR-ed terms in a keyword query.
const maxQueryTerms = 32

// queryTerms splits free text into unique lowercase word terms suitable for
// building a lexical OR query. Single characters are dropped.
func queryTerms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

// ftsMatchQuery builds an FTS5 MATCH expression with every term quoted.
func ftsMatchQuery(text string) string {
	terms := queryTerms(text)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// tsQuery builds a to_tsquery expression OR-ing the terms.
func tsQuery(text string) string {
	return strings.Join(queryTerms(text), " | ")
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
