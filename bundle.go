package figbundle

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// BundleStore is the output surface bundles are written to. Names are
// slash-separated paths relative to the store root. Existence doubles as
// the completion index across re-runs, so writes must be atomic: a name
// must never exist with partial content.
type BundleStore interface {
	Exists(name string) bool
	WriteImage(name string, img image.Image) error
	CopyFile(name string, src string) error
}

// DirStore is a BundleStore over a local directory. All writes go to a
// temp file in the target directory first and are renamed into place.
type DirStore struct {
	root string
}

// NewDirStore creates the root directory and returns a store over it.
// Failure here means the output location is unwritable, which callers
// treat as fatal for the whole run.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "output directory %s is not writable", root)
	}
	return &DirStore{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Exists reports whether the named file is present.
func (s *DirStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// WriteImage writes an image as PNG via a temp file and atomic rename.
func (s *DirStore) WriteImage(name string, img image.Image) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// CopyFile copies an existing file into the store.
func (s *DirStore) CopyFile(name string, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	return s.writeAtomic(name, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// WriteFile writes raw bytes via a temp file and atomic rename.
func (s *DirStore) WriteFile(name string, data []byte) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (s *DirStore) writeAtomic(name string, write func(io.Writer) error) error {
	target := s.path(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), target), "failed to move %s into place", name)
}

// BundleRequest identifies one figure to assemble a context bundle for.
type BundleRequest struct {
	ID         string // figure output identifier, names the bundle directory
	SourcePath string // path of the owning PDF
	Page       int    // 1-based page the figure was found on
	FigurePath string // extracted figure image on disk
}

// Assembler packages accepted figures into context bundles: a directory
// per figure holding the figure image plus full renders of the page and
// its neighbors.
type Assembler struct {
	Renderer     PageRenderer
	Store        BundleStore
	Window       int
	SkipIfExists bool
}

// contextImageName names a rendered context page inside a bundle.
func contextImageName(id string, pageNumber int) string {
	return path.Join(id, fmt.Sprintf("context_p%d.png", pageNumber))
}

// figureImageName names the figure's own image inside its bundle.
func figureImageName(id, figurePath string) string {
	return path.Join(id, filepath.Base(figurePath))
}

// expectedFiles lists every file a complete bundle must contain.
func (a *Assembler) expectedFiles(req BundleRequest, pages []int) []string {
	files := make([]string, 0, len(pages)+1)
	files = append(files, figureImageName(req.ID, req.FigurePath))
	for _, p := range pages {
		files = append(files, contextImageName(req.ID, p))
	}
	return files
}

// Complete reports whether the bundle for the request is fully
// materialized in the store.
func (a *Assembler) Complete(req BundleRequest) (bool, error) {
	count, err := a.Renderer.PageCount(req.SourcePath)
	if err != nil {
		return false, err
	}
	pages := contextWindow(req.Page, count, a.Window)
	for _, name := range a.expectedFiles(req, pages) {
		if !a.Store.Exists(name) {
			return false, nil
		}
	}
	return true, nil
}

// Assemble builds the context bundle for one accepted figure. With
// SkipIfExists set, a complete bundle is returned as-is without any
// rendering; a partial bundle has only its missing pieces regenerated.
func (a *Assembler) Assemble(req BundleRequest) (ContextBundle, error) {
	count, err := a.Renderer.PageCount(req.SourcePath)
	if err != nil {
		return ContextBundle{}, err
	}
	pages := contextWindow(req.Page, count, a.Window)
	bundle := ContextBundle{ID: req.ID, ContextPages: pages}

	figureName := figureImageName(req.ID, req.FigurePath)
	copyFigure := true
	missing := pages
	if a.SkipIfExists {
		copyFigure = !a.Store.Exists(figureName)
		missing = nil
		for _, p := range pages {
			if !a.Store.Exists(contextImageName(req.ID, p)) {
				missing = append(missing, p)
			}
		}
		if !copyFigure && len(missing) == 0 {
			bundle.Skipped = true
			return bundle, nil
		}
	}

	if copyFigure {
		if err := a.Store.CopyFile(figureName, req.FigurePath); err != nil {
			return ContextBundle{}, err
		}
	}

	if len(missing) > 0 {
		renders, err := a.Renderer.RenderPages(req.SourcePath, missing)
		if err != nil {
			return ContextBundle{}, err
		}
		for _, render := range renders {
			if err := a.Store.WriteImage(contextImageName(req.ID, render.PageNumber), render.Image); err != nil {
				return ContextBundle{}, err
			}
		}
	}

	return bundle, nil
}
