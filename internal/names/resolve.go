// Package names resolves free-text portion and holiday names against static
// content indices. Provider titles vary in transliteration, diacritics and
// prefixes, so lookup runs a fixed pipeline of increasingly loose stages and
// returns the first hit.
package names

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrNoMatch is returned by Lookup when every stage fails.
var ErrNoMatch = errors.New("names: no match")

const (
	prefixLen      = 6
	prefixMinLen   = 4
	containsMinLen = 2
)

type candidate[T any] struct {
	key       string
	value     T
	norm      string
	folded    string
	secondary string
}

// Resolve looks query up in index. secondary, if non-nil, returns a
// candidate's alternate display name (for example the Hebrew spelling) used
// by the reverse and substring stages. Candidates are visited in sorted key
// order, so results are deterministic.
func Resolve[T any](query string, index map[string]T, secondary func(T) string) (T, bool) {
	var zero T
	query = strings.TrimSpace(query)
	if query == "" || len(index) == 0 {
		return zero, false
	}

	// 1. exact key
	if v, ok := index[query]; ok {
		return v, true
	}

	cands := prepare(index, secondary)
	if v, ok := resolveStages(query, cands); ok {
		return v, true
	}

	// 8. combined names ("Tazria-Metzora") collapse to their first part.
	if i := strings.Index(query, "-"); i > 0 {
		if first := strings.TrimSpace(query[:i]); first != "" {
			return Resolve(first, index, secondary)
		}
	}
	return zero, false
}

// Lookup is Resolve returning ErrNoMatch instead of a boolean.
func Lookup[T any](query string, index map[string]T, secondary func(T) string) (T, error) {
	v, ok := Resolve(query, index, secondary)
	if !ok {
		return v, ErrNoMatch
	}
	return v, nil
}

func prepare[T any](index map[string]T, secondary func(T) string) []candidate[T] {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]candidate[T], 0, len(keys))
	for _, k := range keys {
		n := Normalize(k)
		c := candidate[T]{key: k, value: index[k], norm: n, folded: Fold(n)}
		if secondary != nil {
			c.secondary = strings.TrimSpace(secondary(index[k]))
		}
		out = append(out, c)
	}
	return out
}

// resolveStages runs stages 2-7.
func resolveStages[T any](query string, cands []candidate[T]) (T, bool) {
	var zero T
	qn := Normalize(query)
	qf := Fold(qn)

	// 2. normalized equality
	if qn != "" {
		for _, c := range cands {
			if c.norm == qn {
				return c.value, true
			}
		}
	}

	// 3. transliteration folding
	if qf != "" {
		for _, c := range cands {
			if c.folded == qf {
				return c.value, true
			}
		}
	}

	// 4. shared leading characters
	if utf8.RuneCountInString(qn) >= prefixMinLen {
		qp := leading(qn, prefixLen)
		for _, c := range cands {
			if utf8.RuneCountInString(c.norm) >= prefixMinLen && leading(c.norm, prefixLen) == qp {
				return c.value, true
			}
		}
	}

	// 5. containment after folding; the candidate found earliest in the
	// query wins, so "Matot-Masei" yields Matot.
	if utf8.RuneCountInString(qf) >= containsMinLen {
		best, bestPos := -1, -1
		for i, c := range cands {
			if utf8.RuneCountInString(c.folded) < containsMinLen {
				continue
			}
			if pos := strings.Index(qf, c.folded); pos >= 0 && (bestPos < 0 || pos < bestPos) {
				best, bestPos = i, pos
			}
		}
		if best >= 0 {
			return cands[best].value, true
		}
		for _, c := range cands {
			if utf8.RuneCountInString(c.folded) >= containsMinLen && strings.Contains(c.folded, qf) {
				return c.value, true
			}
		}
	}

	// 6. reverse lookup by secondary name
	qs := stripMarks(StripPrefixes(query))
	for _, c := range cands {
		if c.secondary == "" {
			continue
		}
		if c.secondary == query || stripMarks(StripPrefixes(c.secondary)) == qs {
			return c.value, true
		}
	}

	// 7. case-insensitive substring against key or secondary name
	ql := strings.ToLower(query)
	for _, c := range cands {
		kl := strings.ToLower(c.key)
		if strings.Contains(kl, ql) || strings.Contains(ql, kl) {
			return c.value, true
		}
		if c.secondary != "" {
			sl := strings.ToLower(c.secondary)
			if strings.Contains(sl, ql) || strings.Contains(ql, sl) {
				return c.value, true
			}
		}
	}

	return zero, false
}

// leading returns the first n runes of s.
func leading(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
