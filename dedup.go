package figbundle

import (
	"image"
	"sync"

	"github.com/pkg/errors"
)

// FingerprintSource computes fingerprints and distances between them.
// Hasher is the production implementation.
type FingerprintSource interface {
	Fingerprint(img image.Image) (Fingerprint, error)
	Distance(a, b Fingerprint) (int, error)
}

type indexEntry struct {
	id          string
	fingerprint Fingerprint
}

// Deduplicator rejects candidates whose fingerprint is within threshold
// distance of any already-accepted figure. The threshold is inclusive: a
// distance exactly equal to it counts as a duplicate. Acceptance is
// first-seen-wins, so insertion order matters and results are
// deterministic for a given candidate sequence.
//
// The accepted-figure index is owned by one Deduplicator per scope:
// construct one per document, or a single shared one (see NewShared) for
// global deduplication across documents.
type Deduplicator struct {
	source    FingerprintSource
	threshold int
	mu        *sync.Mutex // nil unless shared across goroutines
	index     []indexEntry
}

// NewDeduplicator creates a deduplicator with an empty index for a
// single-goroutine scope.
func NewDeduplicator(source FingerprintSource, threshold int) *Deduplicator {
	return &Deduplicator{source: source, threshold: threshold}
}

// NewShared creates a deduplicator whose index may be used from multiple
// goroutines; the duplicate check and insertion happen under one lock.
func NewShared(source FingerprintSource, threshold int) *Deduplicator {
	return &Deduplicator{source: source, threshold: threshold, mu: &sync.Mutex{}}
}

// Accept checks the candidate against the index. It returns the accepted
// figure and true, or the zero figure and false when the candidate is a
// duplicate of an earlier acceptance. The scan is linear in the index
// size, which stays small at per-document figure counts.
func (d *Deduplicator) Accept(c CandidateFigure) (AcceptedFigure, bool, error) {
	fingerprint, err := d.source.Fingerprint(c.Image)
	if err != nil {
		return AcceptedFigure{}, false, errors.Wrapf(err, "failed to fingerprint %s page %d", c.Document, c.Page)
	}

	if d.mu != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	for _, entry := range d.index {
		dist, err := d.source.Distance(fingerprint, entry.fingerprint)
		if err != nil {
			return AcceptedFigure{}, false, err
		}
		if dist <= d.threshold {
			return AcceptedFigure{}, false, nil
		}
	}

	id := c.OutputID()
	d.index = append(d.index, indexEntry{id: id, fingerprint: fingerprint})

	return AcceptedFigure{
		CandidateFigure: c,
		ID:              id,
		Fingerprint:     fingerprint,
	}, true, nil
}

// Len returns the number of accepted figures in the index.
func (d *Deduplicator) Len() int {
	if d.mu != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	return len(d.index)
}
