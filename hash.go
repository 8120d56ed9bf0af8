package figbundle

import (
	"image"

	"github.com/corona10/goimagehash"
	"github.com/pkg/errors"
)

// Algorithm selects the perceptual-hash variant. Fingerprints computed
// under different variants are not comparable, so the choice is fixed per
// run and recorded in the figure metadata.
type Algorithm string

const (
	AlgorithmAverage    Algorithm = "ahash"
	AlgorithmDifference Algorithm = "dhash"
	AlgorithmPerceptual Algorithm = "phash"
)

// ParseAlgorithm parses a hash algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmAverage, AlgorithmDifference, AlgorithmPerceptual:
		return Algorithm(s), nil
	}
	return "", errors.Errorf("unknown hash algorithm %q (want ahash, dhash or phash)", s)
}

// Fingerprint is a fixed-size perceptual summary of an image.
type Fingerprint struct {
	hash *goimagehash.ImageHash
}

// String returns the fingerprint in its serialized form, prefixed with
// the hash kind (e.g. "p:c3e1..."). Empty for the zero value.
func (f Fingerprint) String() string {
	if f.hash == nil {
		return ""
	}
	return f.hash.ToString()
}

// Hasher computes perceptual fingerprints. It is stateless; fingerprints
// are a pure function of pixel data.
type Hasher struct {
	algorithm Algorithm
}

// NewHasher creates a hasher for the given algorithm.
func NewHasher(algorithm Algorithm) Hasher {
	return Hasher{algorithm: algorithm}
}

// Algorithm returns the variant this hasher computes.
func (h Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Fingerprint computes the perceptual fingerprint of an image.
func (h Hasher) Fingerprint(img image.Image) (Fingerprint, error) {
	var (
		hash *goimagehash.ImageHash
		err  error
	)
	switch h.algorithm {
	case AlgorithmAverage:
		hash, err = goimagehash.AverageHash(img)
	case AlgorithmDifference:
		hash, err = goimagehash.DifferenceHash(img)
	default:
		hash, err = goimagehash.PerceptionHash(img)
	}
	if err != nil {
		return Fingerprint{}, errors.Wrapf(err, "failed to compute %s fingerprint", h.algorithm)
	}
	return Fingerprint{hash: hash}, nil
}

// Distance returns the number of differing bits between two fingerprints.
// It errors when the fingerprints were computed under different variants.
func (h Hasher) Distance(a, b Fingerprint) (int, error) {
	if a.hash == nil || b.hash == nil {
		return 0, errors.New("cannot compare zero-value fingerprints")
	}
	dist, err := a.hash.Distance(b.hash)
	if err != nil {
		return 0, errors.Wrap(err, "fingerprints are not comparable")
	}
	return dist, nil
}
