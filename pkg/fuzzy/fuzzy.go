// Package fuzzy ranks short strings against a typed query with typo
// tolerance. It backs search suggestions.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Distance is the Levenshtein edit distance between the normalized forms
// of a and b.
func Distance(a, b string) int {
	return distance([]rune(normalize(a)), []rune(normalize(b)))
}

func distance(r1, r2 []rune) int {
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}

// Threshold is the edit budget for a query of the given length.
func Threshold(query string) int {
	switch n := len([]rune(query)); {
	case n <= 3:
		return 1
	case n >= 8:
		return 3
	default:
		return 2
	}
}

// Match reports whether query matches text as a substring, a word prefix
// or a word within the edit budget.
func Match(query, text string) bool {
	q, t := normalize(query), normalize(text)
	if q == "" {
		return false
	}
	if strings.Contains(t, q) {
		return true
	}
	budget := Threshold(q)
	qr := []rune(q)
	for _, word := range strings.Fields(t) {
		if strings.HasPrefix(word, q) || distance(qr, []rune(word)) <= budget {
			return true
		}
	}
	return false
}

// Field is one searchable attribute with its weight.
type Field struct {
	Text   string
	Weight float64
}

// Score rates how well query matches the fields. Zero means no match.
func Score(query string, fields ...Field) float64 {
	q := normalize(query)
	if q == "" {
		return 0
	}
	qr := []rune(q)
	budget := Threshold(q)

	var score float64
	for _, f := range fields {
		t := normalize(f.Text)
		if t == "" {
			continue
		}
		if strings.Contains(t, q) {
			score += f.Weight
			if containsWord(t, q) {
				score += f.Weight / 2
			}
			continue
		}
		best := 0.0
		for _, word := range strings.Fields(t) {
			var s float64
			if strings.HasPrefix(word, q) {
				s = 0.8 * f.Weight
			} else if d := distance(qr, []rune(word)); d <= budget {
				s = f.Weight * (0.5 - 0.15*float64(d))
			}
			best = max(best, s)
		}
		score += best
	}
	return score
}

// Candidate is a suggestion source; Fields are scored, Value is returned.
type Candidate struct {
	Value  string
	Fields []Field
}

// Rank returns up to limit distinct candidate values with a positive score,
// best first. Ties keep input order.
func Rank(query string, candidates []Candidate, limit int) []string {
	type scored struct {
		value string
		score float64
	}
	seen := make(map[string]bool)
	var hits []scored
	for _, c := range candidates {
		key := normalize(c.Value)
		if key == "" || seen[key] {
			continue
		}
		if s := Score(query, c.Fields...); s > 0 {
			seen[key] = true
			hits = append(hits, scored{c.Value, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.value
	}
	return out
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if w == word {
			return true
		}
	}
	return false
}

// normalize lowercases, strips diacritics and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r == 'đ' {
			r = 'd'
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
