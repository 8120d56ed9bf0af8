package figbundle

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// splitSentences splits document text into sentences at ".", "?" or "!"
// followed by whitespace, unless the next character is a digit (so
// "Fig. 2.1" and section numbers stay intact).
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j == len(runes) {
			continue
		}
		if unicode.IsDigit(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

var labelNumberRE = regexp.MustCompile(`\d+(?:\.\d+)*`)

// FindContexts returns merged windows of sentences that reference the
// figure's number: each match contributes the sentence itself plus two
// sentences on either side, and overlapping windows are merged.
func FindContexts(label string, sentences []string) []string {
	num := labelNumberRE.FindString(label)
	if num == "" {
		return nil
	}

	quoted := regexp.QuoteMeta(num)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)Figure ` + quoted),
		regexp.MustCompile(`(?i)Fig\.?\s*` + quoted),
		regexp.MustCompile(`(?i)Table ` + quoted),
	}

	total := len(sentences)
	type span struct{ start, end int }
	var spans []span
	for i, s := range sentences {
		matched := false
		for _, p := range patterns {
			if p.MatchString(s) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		start := max(0, i-2)
		end := min(total, i+3)
		if end-start < 5 {
			end = min(total, end+(5-(end-start)))
		}
		spans = append(spans, span{start, end})
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	var merged []span
	for _, s := range spans {
		if len(merged) > 0 && s.start <= merged[len(merged)-1].end {
			if s.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	contexts := make([]string, 0, len(merged))
	for _, s := range merged {
		contexts = append(contexts, strings.Join(sentences[s.start:s.end], " "))
	}
	return contexts
}

// originID formats the identifier recorded in figure metadata: the bound
// caption label when present, otherwise the positional fallback.
func originID(c CandidateFigure) string {
	if c.Caption.Label.Label != "" {
		return c.Caption.Label.Label
	}
	return positionalLabel(c.Page, c.Ordinal)
}
