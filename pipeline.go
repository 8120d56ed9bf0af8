package figbundle

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const instanceTimeout = 30 * time.Second

// Tally summarizes a batch run. Failures are isolated at document or
// figure granularity; a run completes with a tally rather than aborting.
type Tally struct {
	Documents       int
	FailedDocuments int
	Accepted        int
	Duplicates      int
	Undersized      int
	Bundles         int
	SkippedBundles  int
	FailedBundles   int
}

func (t *Tally) add(other Tally) {
	t.Documents += other.Documents
	t.FailedDocuments += other.FailedDocuments
	t.Accepted += other.Accepted
	t.Duplicates += other.Duplicates
	t.Undersized += other.Undersized
	t.Bundles += other.Bundles
	t.SkippedBundles += other.SkippedBundles
	t.FailedBundles += other.FailedBundles
}

// Pipeline runs figure extraction, deduplication and bundle assembly
// over a directory of PDFs. Documents are independent and may be
// processed in parallel; each worker borrows its own pdfium instance
// from the pool.
type Pipeline struct {
	pool pdfium.Pool
	cfg  Config

	// OnDocument, if set, is called after each document finishes.
	OnDocument func(name string)

	// ExtractOnly skips context-bundle assembly.
	ExtractOnly bool
}

// New creates a pipeline over a pdfium pool.
func New(pool pdfium.Pool, cfg Config) *Pipeline {
	return &Pipeline{pool: pool, cfg: cfg}
}

// Run processes every PDF in the input directory. The only fatal error
// is an unwritable output directory (or a cancelled context); per-
// document and per-figure failures are logged and tallied.
func (p *Pipeline) Run(ctx context.Context) (Tally, error) {
	rawStore, err := NewDirStore(p.cfg.RawDir)
	if err != nil {
		return Tally{}, err
	}
	var bundleStore *DirStore
	if !p.ExtractOnly {
		bundleStore, err = NewDirStore(p.cfg.BundleDir)
		if err != nil {
			return Tally{}, err
		}
	}

	paths, err := listPDFs(p.cfg.InputDir)
	if err != nil {
		return Tally{}, err
	}

	// Global dedup shares one index across workers; per-document scope
	// gets a fresh index inside processDocument.
	var shared *Deduplicator
	if p.cfg.GlobalDedup {
		shared = NewShared(NewHasher(p.cfg.HashAlgorithm), p.cfg.HashThreshold)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Parallelism))

	var mu sync.Mutex
	var tally Tally

	for _, filePath := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			instance, err := p.pool.GetInstance(instanceTimeout)
			if err != nil {
				return errors.Wrap(err, "failed to get pdfium instance")
			}
			defer instance.Close()

			t, err := p.processDocument(instance, filePath, shared, rawStore, bundleStore)
			if err != nil {
				slog.Error("document failed", "document", docStem(filePath), "error", err)
				t.FailedDocuments++
			}

			mu.Lock()
			tally.add(t)
			mu.Unlock()

			if p.OnDocument != nil {
				p.OnDocument(docStem(filePath))
			}
			return nil
		})
	}

	err = g.Wait()
	slog.Info("run complete",
		"documents", tally.Documents,
		"failed_documents", tally.FailedDocuments,
		"accepted", tally.Accepted,
		"duplicates", tally.Duplicates,
		"undersized", tally.Undersized,
		"bundles", tally.Bundles,
		"skipped_bundles", tally.SkippedBundles,
		"failed_bundles", tally.FailedBundles)
	return tally, err
}

// processDocument runs the extract-dedup-bundle pass for one document.
// A DocumentUnreadableError is returned to the caller; figure-level
// failures are logged and skipped.
func (p *Pipeline) processDocument(instance pdfium.Pdfium, filePath string, shared *Deduplicator, rawStore, bundleStore *DirStore) (Tally, error) {
	stem := docStem(filePath)
	hasher := NewHasher(p.cfg.HashAlgorithm)

	dedup := shared
	if dedup == nil {
		dedup = NewDeduplicator(hasher, p.cfg.HashThreshold)
	}

	extractor := NewExtractor(instance, p.cfg)

	var assembler *Assembler
	if bundleStore != nil {
		assembler = &Assembler{
			Renderer:     NewContextRenderer(instance, p.cfg.RenderDPI),
			Store:        bundleStore,
			Window:       p.cfg.ContextWindow,
			SkipIfExists: p.cfg.SkipIfExists,
		}
	}

	var t Tally
	var records []FigureRecord

	for candidate, err := range extractor.Extract(filePath) {
		if err != nil {
			var unreadable *DocumentUnreadableError
			if errors.As(err, &unreadable) {
				return t, err
			}
			slog.Warn("page extraction failed", "document", stem, "error", err)
			continue
		}

		accepted, ok, err := dedup.Accept(candidate)
		if err != nil {
			slog.Warn("fingerprint failed", "document", stem, "page", candidate.Page, "error", err)
			continue
		}
		if !ok {
			t.Duplicates++
			slog.Info("duplicate figure skipped",
				"document", stem, "page", candidate.Page, "id", candidate.OutputID())
			continue
		}

		rawName := path.Join(stem, accepted.ID+".png")
		rawPath := filepath.Join(rawStore.Root(), stem, accepted.ID+".png")
		if !p.cfg.SkipIfExists || !rawStore.Exists(rawName) {
			if err := rawStore.WriteImage(rawName, candidate.Image); err != nil {
				slog.Warn("failed to write figure image", "document", stem, "id", accepted.ID, "error", err)
				continue
			}
		}
		t.Accepted++

		records = append(records, FigureRecord{
			FigureID:      accepted.ID,
			OriginID:      originID(candidate),
			Page:          candidate.Page,
			Caption:       candidate.Caption.Label.Caption,
			ImagePath:     rawPath,
			Width:         candidate.Width,
			Height:        candidate.Height,
			Hash:          accepted.Fingerprint.String(),
			HashAlgorithm: string(hasher.Algorithm()),
		})

		if assembler != nil {
			bundle, err := assembler.Assemble(BundleRequest{
				ID:         accepted.ID,
				SourcePath: filePath,
				Page:       candidate.Page,
				FigurePath: rawPath,
			})
			if err != nil {
				t.FailedBundles++
				slog.Warn("bundle assembly failed", "document", stem, "id", accepted.ID, "error", err)
				continue
			}
			if bundle.Skipped {
				t.SkippedBundles++
			} else {
				t.Bundles++
			}
		}
	}
	t.Undersized = extractor.Dropped

	if len(records) > 0 {
		if text, err := extractor.DocumentText(filePath); err == nil {
			sentences := splitSentences(text)
			for i := range records {
				records[i].Contexts = FindContexts(records[i].OriginID, sentences)
			}
		} else {
			slog.Warn("text extraction failed, contexts omitted", "document", stem, "error", err)
		}
	}

	data, err := json.MarshalIndent(DocumentRecord{PaperID: stem, Figures: records}, "", "  ")
	if err != nil {
		return t, errors.Wrap(err, "failed to marshal document record")
	}
	if err := rawStore.WriteFile(path.Join(stem, stem+".json"), data); err != nil {
		return t, err
	}

	t.Documents++
	return t, nil
}

var rawImageNameRE = regexp.MustCompile(`(?i)^(.+?)_p(\d+)_.+\.png$`)

// parseRawImageName parses "{stem}_p{page}_{label}.png" back into its
// document stem and page number.
func parseRawImageName(name string) (string, int, bool) {
	m := rawImageNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	page, err := strconv.Atoi(m[2])
	if err != nil || page < 1 {
		return "", 0, false
	}
	return m[1], page, true
}

// RunBundles assembles context bundles from a previously populated raw
// extraction directory, locating each figure's source PDF by the
// document stem encoded in its file name.
func (p *Pipeline) RunBundles(ctx context.Context) (Tally, error) {
	bundleStore, err := NewDirStore(p.cfg.BundleDir)
	if err != nil {
		return Tally{}, err
	}

	instance, err := p.pool.GetInstance(instanceTimeout)
	if err != nil {
		return Tally{}, errors.Wrap(err, "failed to get pdfium instance")
	}
	defer instance.Close()

	assembler := &Assembler{
		Renderer:     NewContextRenderer(instance, p.cfg.RenderDPI),
		Store:        bundleStore,
		Window:       p.cfg.ContextWindow,
		SkipIfExists: p.cfg.SkipIfExists,
	}

	dirs, err := os.ReadDir(p.cfg.RawDir)
	if err != nil {
		return Tally{}, errors.Wrapf(err, "failed to read %s", p.cfg.RawDir)
	}

	var tally Tally
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(p.cfg.RawDir, dir.Name()))
		if err != nil {
			slog.Warn("failed to read raw image directory", "directory", dir.Name(), "error", err)
			continue
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return tally, err
			}
			name := file.Name()
			if !strings.EqualFold(filepath.Ext(name), ".png") {
				continue
			}
			stem, page, ok := parseRawImageName(name)
			if !ok {
				slog.Warn("raw image name does not match naming scheme", "file", name)
				continue
			}
			pdfPath, ok := findPDFByStem(p.cfg.InputDir, stem)
			if !ok {
				slog.Warn("no matching PDF for raw image", "file", name, "stem", stem)
				tally.FailedBundles++
				continue
			}

			bundle, err := assembler.Assemble(BundleRequest{
				ID:         strings.TrimSuffix(name, filepath.Ext(name)),
				SourcePath: pdfPath,
				Page:       page,
				FigurePath: filepath.Join(p.cfg.RawDir, dir.Name(), name),
			})
			if err != nil {
				tally.FailedBundles++
				slog.Warn("bundle assembly failed", "file", name, "error", err)
				continue
			}
			if bundle.Skipped {
				tally.SkippedBundles++
			} else {
				tally.Bundles++
			}
		}
		if p.OnDocument != nil {
			p.OnDocument(dir.Name())
		}
		tally.Documents++
	}

	slog.Info("bundle pass complete",
		"documents", tally.Documents,
		"bundles", tally.Bundles,
		"skipped_bundles", tally.SkippedBundles,
		"failed_bundles", tally.FailedBundles)
	return tally, nil
}

// listPDFs returns the PDF files of a directory in name order.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input directory %s", dir)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// findPDFByStem locates "{stem}.pdf" in dir, falling back to a
// case-insensitive match.
func findPDFByStem(dir, stem string) (string, bool) {
	exact := filepath.Join(dir, stem+".pdf")
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), stem+".pdf") {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}
