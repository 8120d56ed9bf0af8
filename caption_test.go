package figbundle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel(t *testing.T) {
	cases := []struct {
		caption string
		want    string
	}{
		{"Fig. 1.2 Network topology", "FIG1.2"},
		{"Figure 1.2 Network topology", "FIG1.2"},
		{"fig 1.2", "FIG1.2"},
		{"Fig 2.1b Reproduction of the original", "FIG2.1B"},
		{"Table 3: Benchmark results", "TABLE3"},
		{"table 3-1 Parameters", "TABLE3-1"},
		{"Figure A.1", ""}, // no leading number
		{"Results and discussion", ""},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeLabel(tc.caption), "caption %q", tc.caption)
	}
}

func TestCaptionMatcher_BindsCaptionBelowRegion(t *testing.T) {
	region := Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	words := []Word{
		// Heading above the figure must not start a caption.
		{Text: "Figure", Box: Rect{X0: 100, Y0: 50, X1: 140, Y1: 60}},
		{Text: "overview", Box: Rect{X0: 145, Y0: 50, X1: 200, Y1: 60}},
		// Caption line directly under the figure.
		{Text: "Fig.", Box: Rect{X0: 100, Y0: 310, X1: 120, Y1: 320}},
		{Text: "2.1", Box: Rect{X0: 125, Y0: 310, X1: 145, Y1: 320}},
		{Text: "Topology", Box: Rect{X0: 150, Y0: 310, X1: 210, Y1: 320}},
		// Body text far below the caption; the >20pt gap ends collection.
		{Text: "Lorem", Box: Rect{X0: 100, Y0: 360, X1: 140, Y1: 370}},
	}

	result := NewCaptionMatcher().Match(words, region, 5)
	require.True(t, result.Bound)
	require.Equal(t, "FIG2.1", result.Label.Label)
	require.Equal(t, "Fig. 2.1 Topology", result.Label.Caption)
	require.Equal(t, 5, result.Label.Page)
}

func TestCaptionMatcher_MultiLineCaption(t *testing.T) {
	region := Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	words := []Word{
		{Text: "Figure", Box: Rect{X0: 100, Y0: 310, X1: 140, Y1: 320}},
		{Text: "3", Box: Rect{X0: 145, Y0: 310, X1: 150, Y1: 320}},
		{Text: "Measured", Box: Rect{X0: 100, Y0: 325, X1: 160, Y1: 335}},
		{Text: "throughput", Box: Rect{X0: 165, Y0: 325, X1: 230, Y1: 335}},
	}

	result := NewCaptionMatcher().Match(words, region, 2)
	require.True(t, result.Bound)
	require.Equal(t, "FIG3", result.Label.Label)
	require.Equal(t, "Figure 3 Measured throughput", result.Label.Caption)
}

func TestCaptionMatcher_UnboundWhenNoCaption(t *testing.T) {
	region := Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	words := []Word{
		{Text: "Body", Box: Rect{X0: 100, Y0: 310, X1: 130, Y1: 320}},
		{Text: "text", Box: Rect{X0: 135, Y0: 310, X1: 160, Y1: 320}},
	}

	result := NewCaptionMatcher().Match(words, region, 1)
	require.False(t, result.Bound)
	require.Empty(t, result.Label.Label)
}

func TestCaptionMatcher_BoundWithoutParseableNumber(t *testing.T) {
	region := Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	words := []Word{
		{Text: "Figure:", Box: Rect{X0: 100, Y0: 310, X1: 145, Y1: 320}},
		{Text: "setup", Box: Rect{X0: 150, Y0: 310, X1: 185, Y1: 320}},
	}

	// Caption found but no number: bound with an empty canonical label,
	// downstream naming falls back to the positional identifier.
	result := NewCaptionMatcher().Match(words, region, 1)
	require.True(t, result.Bound)
	require.Empty(t, result.Label.Label)
	require.Equal(t, "Figure: setup", result.Label.Caption)
}

func TestCandidateFigure_OutputID(t *testing.T) {
	bound := CandidateFigure{
		Document: "paper",
		Page:     5,
		Ordinal:  1,
		Caption: CaptionResult{
			Bound: true,
			Label: CaptionLabel{Label: "FIG2.1", Caption: "Fig. 2.1", Page: 5},
		},
	}
	require.Equal(t, "paper_p5_FIG2.1", bound.OutputID())

	unbound := CandidateFigure{Document: "paper", Page: 7, Ordinal: 2}
	require.Equal(t, "paper_p7_FIG_P7_2", unbound.OutputID())
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "FIG2.1_2.2", sanitizeFilename(`FIG2.1/2.2`))
	require.Equal(t, "TABLE_3_", sanitizeFilename(`TABLE"3?`))
	require.Equal(t, "FIG1", sanitizeFilename("FIG1"))
}
