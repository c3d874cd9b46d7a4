// Package ranking pairs classifier scores with labels and prepares them for display.
package ranking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// All keeps every class when passed as k to Rank.
const All = -1

// ErrLabelCount reports a score vector whose length differs from the label list.
var ErrLabelCount = errors.New("score count does not match label count")

// Verdict is the coarse reading of the top class.
type Verdict string

const (
	// VerdictHealthy means the top label carries the healthy marker.
	VerdictHealthy Verdict = "healthy"

	// VerdictDiseased means the top label is any other class.
	VerdictDiseased Verdict = "diseased"
)

// Entry is one class with its score.
type Entry struct {
	Label string
	Index int
	Score float32
}

// Percent formats the score for display.
func (e Entry) Percent() string {
	return Percent(e.Score)
}

// Rank pairs scores[i] with labels[i], sorts by score descending and keeps
// the first k entries. Equal scores keep their label order. A negative k
// keeps every class.
func Rank(scores []float32, labels []string, k int) ([]Entry, error) {
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("%w: %d scores, %d labels", ErrLabelCount, len(scores), len(labels))
	}

	entries := make([]Entry, len(scores))
	for i, s := range scores {
		entries[i] = Entry{Index: i, Label: labels[i], Score: s}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	if k >= 0 && k < len(entries) {
		entries = entries[:k]
	}

	return entries, nil
}

// Assess reports whether the label of top contains marker, ignoring case.
func Assess(top Entry, marker string) Verdict {
	if marker != "" && strings.Contains(strings.ToLower(top.Label), strings.ToLower(marker)) {
		return VerdictHealthy
	}
	return VerdictDiseased
}

// Filter drops entries scoring below threshold. The first entry is always kept.
func Filter(entries []Entry, threshold float64) []Entry {
	if threshold <= 0 || len(entries) == 0 {
		return entries
	}

	out := entries[:1:1]
	for _, e := range entries[1:] {
		if float64(e.Score) >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// Percent renders a [0,1] score as a percentage with two decimals.
func Percent(score float32) string {
	return fmt.Sprintf("%.2f%%", float64(score)*100)
}
