package figbundle

import (
	"image"
	"image/draw"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// sanitizeFilename replaces characters that are unsafe in file names.
func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// positionalLabel is the fallback identifier for figures without a bound
// caption label, based on page number and discovery order within the page.
func positionalLabel(page, ordinal int) string {
	return "FIG_P" + strconv.Itoa(page) + "_" + strconv.Itoa(ordinal)
}

// docStem returns the document name without directory or extension.
func docStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// collapseWhitespace normalizes runs of whitespace to single spaces.
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// clampInt restricts a value to a range.
func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// copyImage makes a standalone copy of an image. Crops taken from pdfium
// render buffers must not outlive the render response, so candidates and
// page renders always own their pixels.
func copyImage(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}
