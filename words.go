package figbundle

import (
	"math"
	"sort"
	"strings"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

// extractPageWords extracts the words of a page with their bounding
// boxes, sorted into reading order (top-to-bottom, then left-to-right).
func extractPageWords(instance pdfium.Pdfium, page references.FPDF_PAGE, pageHeight float64) ([]Word, error) {
	textPage, err := instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load text page")
	}
	defer instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
		TextPage: textPage.TextPage,
	})

	charCount, err := instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
		TextPage: textPage.TextPage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count characters")
	}
	if charCount.Count == 0 {
		return nil, nil
	}

	chars, err := extractChars(instance, textPage.TextPage, charCount.Count, pageHeight)
	if err != nil {
		return nil, err
	}

	words := groupCharsIntoWords(chars)
	words = expandLigatures(words)
	sortReadingOrder(words)
	return words, nil
}

// extractChars extracts all characters with their boxes, converting from
// PDF coordinates (origin bottom-left) to top-left origin.
func extractChars(instance pdfium.Pdfium, textPage references.FPDF_TEXTPAGE, count int, pageHeight float64) ([]Char, error) {
	chars := make([]Char, 0, count)

	for i := range count {
		unicodeRes, err := instance.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil || unicodeRes.Unicode == 0 {
			continue
		}

		charBox, err := instance.FPDFText_GetCharBox(&requests.FPDFText_GetCharBox{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil {
			continue
		}

		chars = append(chars, Char{
			Text: rune(unicodeRes.Unicode),
			Box: Rect{
				X0: charBox.Left,
				Y0: pageHeight - charBox.Top,
				X1: charBox.Right,
				Y1: pageHeight - charBox.Bottom,
			},
		})
	}

	return chars, nil
}

func isWhitespaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// groupCharsIntoWords groups characters into words on whitespace.
func groupCharsIntoWords(chars []Char) []Word {
	var words []Word
	var current []rune
	var box Rect
	started := false

	flush := func() {
		if len(current) > 0 {
			words = append(words, Word{Text: string(current), Box: box})
			current = nil
			started = false
		}
	}

	for _, char := range chars {
		if isWhitespaceRune(char.Text) {
			flush()
			continue
		}
		if !started {
			box = char.Box
			started = true
		} else {
			box.X0 = math.Min(box.X0, char.Box.X0)
			box.Y0 = math.Min(box.Y0, char.Box.Y0)
			box.X1 = math.Max(box.X1, char.Box.X1)
			box.Y1 = math.Max(box.Y1, char.Box.Y1)
		}
		current = append(current, char.Text)
	}
	flush()

	return words
}

// sortReadingOrder sorts words top-to-bottom, then left-to-right. Words
// whose boxes overlap vertically are treated as one visual line.
func sortReadingOrder(words []Word) {
	sort.SliceStable(words, func(i, j int) bool {
		wordI := words[i]
		wordJ := words[j]

		overlapY0 := math.Max(wordI.Box.Y0, wordJ.Box.Y0)
		overlapY1 := math.Min(wordI.Box.Y1, wordJ.Box.Y1)
		overlapHeight := overlapY1 - overlapY0
		minHeight := math.Min(wordI.Box.Height(), wordJ.Box.Height())

		// Same visual line - sort by X
		if overlapHeight > minHeight*0.3 {
			return wordI.Box.X0 < wordJ.Box.X0
		}

		return wordI.Box.Y0 < wordJ.Box.Y0
	})
}

// ligatureMap maps ligature unicode codepoints to their expanded forms.
var ligatureMap = map[rune]string{
	0xFB00: "ff",
	0xFB01: "fi",
	0xFB02: "fl",
	0xFB03: "ffi",
	0xFB04: "ffl",
	0xFB05: "ft",
	0xFB06: "st",
}

// expandLigatures expands ligature characters into their component
// letters, so captions like "Eﬀect of ..." match as plain text.
func expandLigatures(words []Word) []Word {
	for i := range words {
		word := &words[i]
		if !strings.ContainsFunc(word.Text, func(r rune) bool {
			_, ok := ligatureMap[r]
			return ok
		}) {
			continue
		}

		var expanded strings.Builder
		for _, r := range word.Text {
			if expansion, ok := ligatureMap[r]; ok {
				expanded.WriteString(expansion)
			} else {
				expanded.WriteRune(r)
			}
		}
		word.Text = expanded.String()
	}
	return words
}

// wordsText joins words into a single space-separated string.
func wordsText(words []Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
