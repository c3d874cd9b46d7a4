package ranking

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tomatoLabels = []string{
	"Bacterial_spot", "Early_blight", "Late_blight", "Leaf_Mold", "Septoria_leaf_spot",
	"Spider_mites Two-spotted_spider_mite", "Target_Spot", "Tomato_Yellow_Leaf_Curl_Virus",
	"Tomato_healthy", "Tomato_mosaic_virus",
}

var tomatoScores = []float32{0.02, 0.05, 0.01, 0.03, 0.04, 0.02, 0.01, 0.01, 0.8, 0.01}

func TestRank_HealthyLeaf(t *testing.T) {
	got, err := Rank([]float32{0.9, 0.1}, []string{"Healthy", "Early_blight"}, All)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Index: 0, Label: "Healthy", Score: 0.9},
		{Index: 1, Label: "Early_blight", Score: 0.1},
	}, got)
	assert.Equal(t, VerdictHealthy, Assess(got[0], "healthy"))
}

func TestRank_SortsDescending(t *testing.T) {
	got, err := Rank(tomatoScores, tomatoLabels, All)
	require.NoError(t, err)
	require.Len(t, got, len(tomatoLabels))

	assert.Equal(t, "Tomato_healthy", got[0].Label)
	assert.Equal(t, 8, got[0].Index)
	assert.Equal(t, "Early_blight", got[1].Label)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRank_TiesKeepLabelOrder(t *testing.T) {
	got, err := Rank([]float32{0.2, 0.4, 0.2, 0.2}, []string{"a", "b", "c", "d"}, All)
	require.NoError(t, err)

	labels := make([]string, len(got))
	for i, e := range got {
		labels[i] = e.Label
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, labels)
}

func TestRank_IsIdempotent(t *testing.T) {
	first, err := Rank(tomatoScores, tomatoLabels, All)
	require.NoError(t, err)

	scores := make([]float32, len(first))
	labels := make([]string, len(first))
	for i, e := range first {
		scores[i], labels[i] = e.Score, e.Label
	}

	second, err := Rank(scores, labels, All)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].Label, second[i].Label)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRank_TopK(t *testing.T) {
	for k := 0; k <= len(tomatoLabels)+3; k++ {
		got, err := Rank(tomatoScores, tomatoLabels, k)
		require.NoError(t, err)
		assert.Len(t, got, min(k, len(tomatoLabels)), "k=%d", k)
	}

	got, err := Rank(tomatoScores, tomatoLabels, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tomato_healthy", got[0].Label)
}

func TestRank_LengthMismatch(t *testing.T) {
	_, err := Rank([]float32{0.5, 0.5}, []string{"only"}, All)
	assert.ErrorIs(t, err, ErrLabelCount)
}

func TestAssess(t *testing.T) {
	assert.Equal(t, VerdictHealthy, Assess(Entry{Label: "Tomato_healthy"}, "healthy"))
	assert.Equal(t, VerdictHealthy, Assess(Entry{Label: "HEALTHY"}, "Healthy"))
	assert.Equal(t, VerdictDiseased, Assess(Entry{Label: "Late_blight"}, "healthy"))
	assert.Equal(t, VerdictDiseased, Assess(Entry{Label: "Tomato_healthy"}, ""))
}

func TestFilter(t *testing.T) {
	ranked, err := Rank(tomatoScores, tomatoLabels, All)
	require.NoError(t, err)

	got := Filter(ranked, 0.035)
	require.Len(t, got, 3)
	assert.Equal(t, "Tomato_healthy", got[0].Label)

	// The top class survives any threshold.
	got = Filter(ranked, 0.99)
	require.Len(t, got, 1)
	assert.Equal(t, "Tomato_healthy", got[0].Label)

	assert.Len(t, Filter(ranked, 0), len(ranked))
	assert.Len(t, ranked, len(tomatoLabels))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "90.00%", Percent(0.9))
	assert.Equal(t, "0.00%", Percent(0))
	assert.Equal(t, "100.00%", Percent(1))
	assert.Equal(t, "12.35%", Percent(0.12345))
}

func TestWriteTable(t *testing.T) {
	ranked, err := Rank([]float32{0.25, 0.75}, []string{"Early_blight", "Tomato_healthy"}, All)
	require.NoError(t, err)

	var buf bytes.Buffer
	names := map[string]string{"Tomato_healthy": "Healthy"}
	require.NoError(t, WriteTable(&buf, ranked, func(l string) string {
		if n, ok := names[l]; ok {
			return n
		}
		return l
	}, 4))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Healthy")
	assert.Contains(t, lines[1], "75.00%")
	assert.Contains(t, lines[1], "███░")
	assert.Contains(t, lines[2], "Early_blight")
	assert.Contains(t, lines[2], "█░░░")
}
