package figbundle

import (
	"image"
	"strconv"
)

// Rect represents a bounding box in page coordinates.
type Rect struct {
	X0 float64 // Left
	Y0 float64 // Top (after conversion from PDF coordinates)
	X1 float64 // Right
	Y1 float64 // Bottom (after conversion from PDF coordinates)
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// Char represents a single character with its bounding box.
type Char struct {
	Text rune
	Box  Rect
}

// Word represents a group of characters with a merged bounding box.
type Word struct {
	Text string
	Box  Rect
}

// CaptionLabel is a parsed figure or table caption found on a page.
// Label holds the canonical identifier ("FIG1.2", "TABLE3"); it is empty
// when the caption text carried no parseable number. Caption holds the
// raw caption text as it appears on the page.
type CaptionLabel struct {
	Label   string
	Caption string
	Page    int
}

// CaptionResult is the outcome of caption binding for one image region.
// Matching is a heuristic: an unbound result is not an error, the figure
// falls back to a positional identifier downstream.
type CaptionResult struct {
	Bound bool
	Label CaptionLabel
}

// CandidateFigure is one embedded image region that survived the size
// filter. It references its owning document by name and source path so
// the document can be reopened independently for context rendering.
type CandidateFigure struct {
	Document   string // document stem, without extension
	SourcePath string
	Page       int // 1-based
	Ordinal    int // 1-based image object order within the page
	Width      int // rendered crop size in pixels
	Height     int
	Image      image.Image
	Caption    CaptionResult
}

// OutputID returns the stable output identifier for the figure:
// the caption label when one was bound, otherwise a positional fallback
// based on page number and discovery order.
func (c CandidateFigure) OutputID() string {
	label := c.Caption.Label.Label
	if label == "" {
		label = positionalLabel(c.Page, c.Ordinal)
	}
	return c.Document + "_p" + strconv.Itoa(c.Page) + "_" + sanitizeFilename(label)
}

// AcceptedFigure is a candidate that passed the duplicate check.
type AcceptedFigure struct {
	CandidateFigure
	ID          string
	Fingerprint Fingerprint
}

// PageRender is a full page rasterized at a fixed resolution.
type PageRender struct {
	PageNumber int // 1-based
	Image      image.Image
}

// ContextBundle describes one assembled output unit: the figure image
// plus the rendered context pages, clipped at document boundaries.
type ContextBundle struct {
	ID           string
	ContextPages []int
	Skipped      bool // true when a complete bundle already existed
}

// FigureRecord is the per-figure entry in a document's metadata file.
type FigureRecord struct {
	FigureID      string   `json:"figure_id"`
	OriginID      string   `json:"origin_id"`
	Page          int      `json:"page"`
	Caption       string   `json:"caption"`
	ImagePath     string   `json:"image_path"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	Hash          string   `json:"hash"`
	HashAlgorithm string   `json:"hash_algorithm"`
	Contexts      []string `json:"contexts"`
}

// DocumentRecord is the metadata file written next to a document's
// extracted figures.
type DocumentRecord struct {
	PaperID string         `json:"paper_id"`
	Figures []FigureRecord `json:"figures"`
}
