package recurrence

import (
	"sort"
	"strings"
	"unicode"
)

var ordinalWords = map[string]int{
	"1st": 1, "first": 1,
	"2nd": 2, "second": 2,
	"3rd": 3, "third": 3,
	"4th": 4, "fourth": 4,
	"5th": 5, "fifth": 5,
	"last": LastOrdinal,
}

var ordinalNames = map[int]string{
	1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 5: "5th", LastOrdinal: "last",
}

// words lowercases text and splits it on anything that is not a letter, a
// digit or a hyphen.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// ParseOrdinals collects every recognized ordinal word in text order,
// skipping duplicates.
func ParseOrdinals(text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, w := range words(text) {
		n, ok := ordinalWords[w]
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// CanonicalOrdinals returns a sorted copy: ascending, with "last" at the end.
func CanonicalOrdinals(ordinals []int) []int {
	out := make([]int, 0, len(ordinals))
	seen := make(map[int]bool)
	for _, n := range ordinals {
		if _, ok := ordinalNames[n]; !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a == LastOrdinal {
			return false
		}
		if b == LastOrdinal {
			return true
		}
		return a < b
	})
	return out
}

// FormatOrdinals serializes ordinals as composite text, e.g. "1st/3rd/last".
func FormatOrdinals(ordinals []int) string {
	return joinOrdinals(CanonicalOrdinals(ordinals), "/")
}

func joinOrdinals(ordinals []int, sep string) string {
	parts := make([]string, 0, len(ordinals))
	for _, n := range ordinals {
		parts = append(parts, ordinalNames[n])
	}
	return strings.Join(parts, sep)
}

// ordinalFromDay returns the weekday position of a day of month: 1..4, or
// LastOrdinal when it is the fifth occurrence.
func ordinalFromDay(day int) int {
	n := (day-1)/7 + 1
	if n >= 5 {
		return LastOrdinal
	}
	return n
}
