package model

import (
	"sort"
	"strings"
)

// SplitPeople turns a legacy free-text person field ("Alex, Sam & Jo") into
// explicit person references. Separators are ',', ';' and '&'. Parts are
// trimmed, empty parts dropped and case-insensitive duplicates collapsed to
// the first spelling.
func SplitPeople(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '&'
	})
	var out []string
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if SamePerson(seen, p) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// SamePerson compares two person references.
func SamePerson(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// DistinctPeople returns every person referenced by the interactions, in
// alphabetical order, using the first spelling seen for each.
func DistinctPeople(interactions []Interaction) []string {
	seen := make(map[string]string)
	for _, in := range interactions {
		for _, p := range in.People {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			key := strings.ToLower(p)
			if _, ok := seen[key]; !ok {
				seen[key] = p
			}
		}
	}
	out := make([]string, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
