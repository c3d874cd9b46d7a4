package ranking

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
)

const defaultBarWidth = 30

// WriteTable prints the ranked entries as an aligned table with a bar per
// class. name maps labels to display names and may be nil.
func WriteTable(w io.Writer, entries []Entry, name func(string) string, barWidth int) error {
	if barWidth <= 0 {
		barWidth = defaultBarWidth
	}
	if name == nil {
		name = func(label string) string { return label }
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCLASS\tCONFIDENCE\t")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, name(e.Label), e.Percent(), bar(e.Score, barWidth))
	}
	return tw.Flush()
}

func bar(score float32, width int) string {
	s := float64(score)
	if math.IsNaN(s) || s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	n := int(math.Round(s * float64(width)))
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
