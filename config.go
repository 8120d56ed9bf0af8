package figbundle

// Config controls figure extraction, deduplication and bundle assembly.
type Config struct {
	// InputDir is the directory of source PDF files.
	InputDir string

	// RawDir receives one directory per document with the extracted
	// figure images and the document's metadata JSON.
	RawDir string

	// BundleDir receives one directory per accepted figure with the
	// figure image and its rendered context pages.
	BundleDir string

	// MinWidth/MinHeight filter out small image regions (pixels,
	// measured on the extraction render). Regions below either minimum
	// never become candidates.
	MinWidth  int
	MinHeight int

	// HashThreshold is the inclusive duplicate distance: a candidate
	// whose fingerprint is within this many bits of an accepted figure
	// is rejected.
	HashThreshold int

	// HashAlgorithm selects the perceptual-hash variant (default phash).
	HashAlgorithm Algorithm

	// ExtractDPI is the resolution figures are cropped at.
	ExtractDPI int

	// RenderDPI is the resolution context pages are rendered at.
	RenderDPI int

	// ContextWindow is the number of neighbor pages rendered on each
	// side of a figure's page, clipped at document boundaries.
	ContextWindow int

	// SkipIfExists treats an already complete bundle as final and
	// performs no rendering work for it.
	SkipIfExists bool

	// GlobalDedup shares one accepted-figure index across all documents
	// instead of one per document.
	GlobalDedup bool

	// Parallelism is the number of documents processed concurrently.
	Parallelism int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		InputDir:      "pdf",
		RawDir:        "raw_img",
		BundleDir:     "img_set",
		MinWidth:      300,
		MinHeight:     200,
		HashThreshold: 5,
		HashAlgorithm: AlgorithmPerceptual,
		ExtractDPI:    150,
		RenderDPI:     220,
		ContextWindow: 1,
		SkipIfExists:  true,
		Parallelism:   1,
	}
}
