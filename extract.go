package figbundle

import (
	"image"
	"iter"
	"log/slog"
	"strings"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

// Extractor walks the pages of a PDF and emits candidate figures: every
// embedded image region at least MinWidth x MinHeight pixels, measured on
// a page render at ExtractDPI, with a best-effort caption binding.
type Extractor struct {
	instance pdfium.Pdfium
	cfg      Config
	matcher  CaptionMatcher

	// Dropped counts regions discarded by the size filter.
	Dropped int
}

// NewExtractor creates a figure extractor backed by a pdfium instance.
func NewExtractor(instance pdfium.Pdfium, cfg Config) *Extractor {
	return &Extractor{
		instance: instance,
		cfg:      cfg,
		matcher:  NewCaptionMatcher(),
	}
}

// Extract lazily yields the candidate figures of a document in page
// order, then image object order within a page. An unopenable document
// yields a single DocumentUnreadableError; errors on individual pages
// are yielded and extraction continues with the next page.
func (e *Extractor) Extract(filePath string) iter.Seq2[CandidateFigure, error] {
	return func(yield func(CandidateFigure, error) bool) {
		stem := docStem(filePath)

		doc, err := e.instance.OpenDocument(&requests.OpenDocument{
			FilePath: &filePath,
		})
		if err != nil {
			yield(CandidateFigure{}, &DocumentUnreadableError{Document: stem, Err: err})
			return
		}
		defer e.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
			Document: doc.Document,
		})

		pageCount, err := e.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
			Document: doc.Document,
		})
		if err != nil {
			yield(CandidateFigure{}, &DocumentUnreadableError{Document: stem, Err: err})
			return
		}

		for i := range pageCount.PageCount {
			if !e.extractPage(doc.Document, filePath, stem, i, yield) {
				return
			}
		}
	}
}

// extractPage emits the candidates of one page. Returns false when the
// consumer stopped the iteration.
func (e *Extractor) extractPage(doc references.FPDF_DOCUMENT, filePath, stem string, pageIndex int, yield func(CandidateFigure, error) bool) bool {
	pageNumber := pageIndex + 1

	pageResp, err := e.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: doc,
		Index:    pageIndex,
	})
	if err != nil {
		return yield(CandidateFigure{}, errors.Wrapf(err, "failed to load page %d of %s", pageNumber, stem))
	}
	defer e.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	regions, err := imageRegions(e.instance, pageResp.Page)
	if err != nil {
		return yield(CandidateFigure{}, errors.Wrapf(err, "failed to list image objects on page %d of %s", pageNumber, stem))
	}
	if len(regions) == 0 {
		return true
	}

	pageHeight, err := e.instance.FPDF_GetPageHeightF(&requests.FPDF_GetPageHeightF{
		Page: requests.Page{
			ByReference: &pageResp.Page,
		},
	})
	if err != nil {
		return yield(CandidateFigure{}, errors.Wrapf(err, "failed to get height of page %d of %s", pageNumber, stem))
	}
	height := float64(pageHeight.PageHeight)

	words, err := extractPageWords(e.instance, pageResp.Page, height)
	if err != nil {
		// Captions degrade gracefully; the figures still count.
		words = nil
	}

	render, err := e.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: e.cfg.ExtractDPI,
		Page: requests.Page{
			ByReference: &pageResp.Page,
		},
	})
	if err != nil {
		return yield(CandidateFigure{}, errors.Wrapf(err, "failed to render page %d of %s", pageNumber, stem))
	}
	defer render.Cleanup()

	pageImage := render.Result.Image
	ratio := render.Result.PointToPixelRatio

	for ordinal, bounds := range regions {
		// Convert from PDF coordinates (origin bottom-left) to the
		// top-left origin used everywhere else.
		region := Rect{
			X0: float64(bounds.Left),
			Y0: height - float64(bounds.Top),
			X1: float64(bounds.Right),
			Y1: height - float64(bounds.Bottom),
		}

		crop := cropRegion(pageImage, region, ratio)
		if crop == nil {
			continue
		}
		size := crop.Bounds().Size()
		if e.undersized(size.X, size.Y) {
			e.Dropped++
			slog.Debug("undersized image region skipped",
				"document", stem, "page", pageNumber,
				"width", size.X, "height", size.Y)
			continue
		}

		candidate := CandidateFigure{
			Document:   stem,
			SourcePath: filePath,
			Page:       pageNumber,
			Ordinal:    ordinal + 1,
			Width:      size.X,
			Height:     size.Y,
			Image:      crop,
			Caption:    e.matcher.Match(words, region, pageNumber),
		}
		if !yield(candidate, nil) {
			return false
		}
	}

	return true
}

// undersized reports whether a region fails the minimum-size filter.
// Undersized regions never become candidates.
func (e *Extractor) undersized(width, height int) bool {
	return width < e.cfg.MinWidth || height < e.cfg.MinHeight
}

// imageBounds is the location of one image object in PDF page
// coordinates (origin bottom-left).
type imageBounds struct {
	Left, Bottom, Right, Top float32
}

// imageRegions returns the bounds of every image object on a page, in
// object order.
func imageRegions(instance pdfium.Pdfium, page references.FPDF_PAGE) ([]imageBounds, error) {
	objCount, err := instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count page objects")
	}

	var regions []imageBounds
	for i := range objCount.Count {
		obj, err := instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page: requests.Page{
				ByReference: &page,
			},
			Index: i,
		})
		if err != nil {
			continue
		}

		objType, err := instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: obj.PageObject,
		})
		if err != nil || objType.Type != enums.FPDF_PAGEOBJ_IMAGE {
			continue
		}

		bounds, err := instance.FPDFPageObj_GetBounds(&requests.FPDFPageObj_GetBounds{
			PageObject: obj.PageObject,
		})
		if err != nil {
			continue
		}

		regions = append(regions, imageBounds{
			Left:   bounds.Left,
			Bottom: bounds.Bottom,
			Right:  bounds.Right,
			Top:    bounds.Top,
		})
	}

	return regions, nil
}

// cropRegion cuts the region out of a page render, converting points to
// pixels. Returns nil for degenerate regions.
func cropRegion(pageImage image.Image, region Rect, pointToPixel float64) image.Image {
	bounds := pageImage.Bounds()
	x0 := clampInt(int(region.X0*pointToPixel), bounds.Min.X, bounds.Max.X)
	y0 := clampInt(int(region.Y0*pointToPixel), bounds.Min.Y, bounds.Max.Y)
	x1 := clampInt(int(region.X1*pointToPixel+0.5), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(region.Y1*pointToPixel+0.5), bounds.Min.Y, bounds.Max.Y)
	if x1 <= x0 || y1 <= y0 {
		return nil
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	src, ok := pageImage.(subImager)
	if !ok {
		return nil
	}
	// Copy out of the render buffer, which is reclaimed on Cleanup.
	return copyImage(src.SubImage(image.Rect(x0, y0, x1, y1)))
}

// DocumentText returns the plain text of the whole document, pages
// joined by newlines. Pages that fail text extraction contribute an
// empty string.
func (e *Extractor) DocumentText(filePath string) (string, error) {
	stem := docStem(filePath)

	doc, err := e.instance.OpenDocument(&requests.OpenDocument{
		FilePath: &filePath,
	})
	if err != nil {
		return "", &DocumentUnreadableError{Document: stem, Err: err}
	}
	defer e.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCount, err := e.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return "", &DocumentUnreadableError{Document: stem, Err: err}
	}

	pages := make([]string, 0, pageCount.PageCount)
	for i := range pageCount.PageCount {
		text, err := e.pageText(doc.Document, i)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

func (e *Extractor) pageText(doc references.FPDF_DOCUMENT, pageIndex int) (string, error) {
	pageResp, err := e.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: doc,
		Index:    pageIndex,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to load page")
	}
	defer e.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	textPage, err := e.instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
		Page: requests.Page{
			ByReference: &pageResp.Page,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to load text page")
	}
	defer e.instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
		TextPage: textPage.TextPage,
	})

	charCount, err := e.instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
		TextPage: textPage.TextPage,
	})
	if err != nil || charCount.Count == 0 {
		return "", err
	}

	text, err := e.instance.FPDFText_GetText(&requests.FPDFText_GetText{
		TextPage:   textPage.TextPage,
		StartIndex: 0,
		Count:      charCount.Count,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get page text")
	}
	return text.Text, nil
}
