package figbundle

import (
	"regexp"
	"strings"
)

// captionMaxGap is the vertical distance (in points) between consecutive
// caption words beyond which the caption is considered finished.
const captionMaxGap = 20.0

var (
	captionStartRE = regexp.MustCompile(`(?i)^(fig|figure|table)`)
	captionLabelRE = regexp.MustCompile(`(?i)^\s*(fig(?:\.|ure)?|table)\s*([0-9]+(?:[.\-][0-9A-Za-z]+)*)`)
)

// CaptionMatcher locates figure/table captions on a page and associates
// them with image regions. Binding is heuristic and degrades gracefully:
// a region without a matching caption yields an unbound result.
type CaptionMatcher struct {
	// MaxGap is the vertical gap (points) that terminates caption
	// collection.
	MaxGap float64
}

// NewCaptionMatcher returns a matcher with the default gap threshold.
func NewCaptionMatcher() CaptionMatcher {
	return CaptionMatcher{MaxGap: captionMaxGap}
}

// Match scans the page's words in reading order and binds the nearest
// caption below the image region. Words are expected in reading order
// (top-to-bottom, left-to-right); collection starts at the first word
// below the region matching Fig/Figure/Table and stops at a vertical gap
// larger than MaxGap.
func (m CaptionMatcher) Match(words []Word, region Rect, page int) CaptionResult {
	var captionWords []string
	found := false
	lastTop := 0.0

	for _, w := range words {
		if w.Box.Y0 <= region.Y1 {
			continue
		}
		if !found {
			if !captionStartRE.MatchString(w.Text) {
				continue
			}
			found = true
		} else if w.Box.Y0-lastTop > m.MaxGap {
			break
		}
		captionWords = append(captionWords, w.Text)
		lastTop = w.Box.Y0
	}

	caption := collapseWhitespace(strings.Join(captionWords, " "))
	if caption == "" {
		return CaptionResult{}
	}

	return CaptionResult{
		Bound: true,
		Label: CaptionLabel{
			Label:   NormalizeLabel(caption),
			Caption: caption,
			Page:    page,
		},
	}
}

// NormalizeLabel parses the leading figure/table reference out of a
// caption and returns it in canonical form: "Fig. 1.2", "Figure 1.2" and
// "fig 1.2" all normalize to "FIG1.2", "Table 3" to "TABLE3". It returns
// an empty string when the caption carries no parseable reference.
func NormalizeLabel(caption string) string {
	m := captionLabelRE.FindStringSubmatch(caption)
	if m == nil {
		return ""
	}
	prefix := "FIG"
	if strings.HasPrefix(strings.ToLower(m[1]), "tab") {
		prefix = "TABLE"
	}
	return prefix + strings.ToUpper(m[2])
}
