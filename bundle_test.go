package figbundle

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory BundleStore so completion logic is testable
// without the real filesystem.
type memStore struct {
	files map[string]bool
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]bool)}
}

func (s *memStore) Exists(name string) bool {
	return s.files[name]
}

func (s *memStore) WriteImage(name string, img image.Image) error {
	s.files[name] = true
	return nil
}

func (s *memStore) CopyFile(name string, src string) error {
	s.files[name] = true
	return nil
}

// fakeRenderer counts rendering work. PageCount is metadata, not
// rendering; only RenderPages calls count.
type fakeRenderer struct {
	pages       int
	renderCalls int
	rendered    [][]int
}

func (r *fakeRenderer) PageCount(string) (int, error) {
	return r.pages, nil
}

func (r *fakeRenderer) RenderPages(_ string, pages []int) ([]PageRender, error) {
	r.renderCalls++
	r.rendered = append(r.rendered, pages)
	renders := make([]PageRender, len(pages))
	for i, p := range pages {
		renders[i] = PageRender{PageNumber: p, Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}
	}
	return renders, nil
}

func interiorRequest() BundleRequest {
	return BundleRequest{
		ID:         "paper_p5_FIG2.1",
		SourcePath: "pdf/paper.pdf",
		Page:       5,
		FigurePath: "raw_img/paper/paper_p5_FIG2.1.png",
	}
}

func TestContextWindow(t *testing.T) {
	require.Equal(t, []int{4, 5, 6}, contextWindow(5, 10, 1))
	require.Equal(t, []int{1, 2}, contextWindow(1, 10, 1))
	require.Equal(t, []int{9, 10}, contextWindow(10, 10, 1))
	require.Equal(t, []int{1}, contextWindow(1, 1, 1))
	require.Equal(t, []int{3}, contextWindow(3, 10, 0))
	require.Equal(t, []int{1, 2, 3}, contextWindow(2, 3, 5))
}

func TestAssembler_BuildsInteriorBundle(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: true}

	bundle, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	require.False(t, bundle.Skipped)
	require.Equal(t, []int{4, 5, 6}, bundle.ContextPages)

	require.True(t, store.Exists("paper_p5_FIG2.1/paper_p5_FIG2.1.png"))
	for _, p := range []int{4, 5, 6} {
		require.True(t, store.Exists(contextImageName("paper_p5_FIG2.1", p)))
	}
	require.Equal(t, 1, renderer.renderCalls)
	require.Equal(t, [][]int{{4, 5, 6}}, renderer.rendered)
}

func TestAssembler_SkipIfExistsDoesNoRenderWork(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: true}

	_, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	require.Equal(t, 1, renderer.renderCalls)

	bundle, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	require.True(t, bundle.Skipped)
	require.Equal(t, 1, renderer.renderCalls, "second run must perform zero render calls")
}

func TestAssembler_PartialBundleRegeneratesMissingPages(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: true}

	_, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)

	// A prior run left the bundle incomplete.
	delete(store.files, contextImageName("paper_p5_FIG2.1", 5))

	bundle, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	require.False(t, bundle.Skipped)
	require.Equal(t, 2, renderer.renderCalls)
	require.Equal(t, []int{5}, renderer.rendered[1], "only the missing page is re-rendered")
}

func TestAssembler_OverwritesWhenSkipDisabled(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: false}

	_, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	bundle, err := assembler.Assemble(interiorRequest())
	require.NoError(t, err)
	require.False(t, bundle.Skipped)
	require.Equal(t, 2, renderer.renderCalls)
}

func TestAssembler_ClipsAtDocumentBoundaries(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: true}

	first := interiorRequest()
	first.ID = "paper_p1_FIG1"
	first.Page = 1
	bundle, err := assembler.Assemble(first)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, bundle.ContextPages)
	require.False(t, store.Exists(contextImageName("paper_p1_FIG1", 0)))

	last := interiorRequest()
	last.ID = "paper_p10_FIG9"
	last.Page = 10
	bundle, err = assembler.Assemble(last)
	require.NoError(t, err)
	require.Equal(t, []int{9, 10}, bundle.ContextPages)
	require.False(t, store.Exists(contextImageName("paper_p10_FIG9", 11)))
}

func TestAssembler_Complete(t *testing.T) {
	store := newMemStore()
	renderer := &fakeRenderer{pages: 10}
	assembler := &Assembler{Renderer: renderer, Store: store, Window: 1, SkipIfExists: true}

	complete, err := assembler.Complete(interiorRequest())
	require.NoError(t, err)
	require.False(t, complete)

	_, err = assembler.Assemble(interiorRequest())
	require.NoError(t, err)

	complete, err = assembler.Complete(interiorRequest())
	require.NoError(t, err)
	require.True(t, complete)

	delete(store.files, contextImageName("paper_p5_FIG2.1", 6))
	complete, err = assembler.Complete(interiorRequest())
	require.NoError(t, err)
	require.False(t, complete)
}

// failingRenderer simulates a page that cannot be rasterized.
type failingRenderer struct {
	pages int
}

func (r *failingRenderer) PageCount(string) (int, error) {
	return r.pages, nil
}

func (r *failingRenderer) RenderPages(path string, pages []int) ([]PageRender, error) {
	return nil, &RenderUnavailableError{Document: docStem(path), Page: pages[0], Err: errors.New("corrupt page stream")}
}

func TestAssembler_RenderFailureIsScoped(t *testing.T) {
	store := newMemStore()
	assembler := &Assembler{Renderer: &failingRenderer{pages: 10}, Store: store, Window: 1, SkipIfExists: true}

	_, err := assembler.Assemble(interiorRequest())
	require.Error(t, err)

	var unavailable *RenderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "paper", unavailable.Document)
	require.Equal(t, 4, unavailable.Page)
}

func TestDirStore_AtomicWrites(t *testing.T) {
	root := filepath.Join(t.TempDir(), "bundles")
	store, err := NewDirStore(root)
	require.NoError(t, err)

	require.False(t, store.Exists("a/b.png"))
	require.NoError(t, store.WriteImage("a/b.png", image.NewRGBA(image.Rect(0, 0, 2, 2))))
	require.True(t, store.Exists("a/b.png"))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, store.WriteFile("a/meta.json", []byte(`{}`)))
	require.True(t, store.Exists("a/meta.json"))

	src := filepath.Join(t.TempDir(), "src.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o644))
	require.NoError(t, store.CopyFile("a/copy.png", src))
	data, err := os.ReadFile(filepath.Join(root, "a", "copy.png"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}
