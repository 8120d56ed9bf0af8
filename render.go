package figbundle

import (
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
)

// PageRenderer reproduces full pages as raster images. ContextRenderer
// is the production implementation; tests inject fakes to observe how
// much rendering work a pass performs.
type PageRenderer interface {
	PageCount(filePath string) (int, error)
	RenderPages(filePath string, pages []int) ([]PageRender, error)
}

// ContextRenderer renders full pages at a fixed DPI through pdfium.
// Rendering is a pure function of (document, page, resolution): two
// renders of the same page at the same DPI are pixel-identical, which is
// what makes skip-if-exists safe.
type ContextRenderer struct {
	instance pdfium.Pdfium
	dpi      int
}

// NewContextRenderer creates a renderer at the given resolution.
func NewContextRenderer(instance pdfium.Pdfium, dpi int) *ContextRenderer {
	return &ContextRenderer{instance: instance, dpi: dpi}
}

// PageCount returns the number of pages in a document.
func (r *ContextRenderer) PageCount(filePath string) (int, error) {
	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		FilePath: &filePath,
	})
	if err != nil {
		return 0, &RenderUnavailableError{Document: docStem(filePath), Err: err}
	}
	defer r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCount, err := r.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return 0, &RenderUnavailableError{Document: docStem(filePath), Err: err}
	}
	return pageCount.PageCount, nil
}

// RenderPages renders the given 1-based pages in order. Failure to
// rasterize any page fails the whole call with a RenderUnavailableError
// scoped to that page.
func (r *ContextRenderer) RenderPages(filePath string, pages []int) ([]PageRender, error) {
	stem := docStem(filePath)

	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		FilePath: &filePath,
	})
	if err != nil {
		return nil, &RenderUnavailableError{Document: stem, Err: err}
	}
	defer r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	renders := make([]PageRender, 0, len(pages))
	for _, pageNumber := range pages {
		render, err := r.instance.RenderPageInDPI(&requests.RenderPageInDPI{
			DPI: r.dpi,
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: doc.Document,
					Index:    pageNumber - 1,
				},
			},
		})
		if err != nil {
			return nil, &RenderUnavailableError{Document: stem, Page: pageNumber, Err: err}
		}
		img := copyImage(render.Result.Image)
		render.Cleanup()

		renders = append(renders, PageRender{
			PageNumber: pageNumber,
			Image:      img,
		})
	}
	return renders, nil
}

// RenderContext renders the figure's page and its neighbors within the
// window, clipped to the document's page range.
func (r *ContextRenderer) RenderContext(filePath string, pageNumber, window int) ([]PageRender, error) {
	count, err := r.PageCount(filePath)
	if err != nil {
		return nil, err
	}
	return r.RenderPages(filePath, contextWindow(pageNumber, count, window))
}

// contextWindow returns the 1-based pages pageNumber-window ..
// pageNumber+window clipped to [1, lastPage], in ascending order.
func contextWindow(pageNumber, lastPage, window int) []int {
	first := clampInt(pageNumber-window, 1, lastPage)
	last := clampInt(pageNumber+window, 1, lastPage)
	pages := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	return pages
}
