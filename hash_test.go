package figbundle

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// gradientImage builds a deterministic test image with structure along
// one axis so perceptual hashes are non-trivial.
func gradientImage(w, h int, horizontal bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * y / h)
			if horizontal {
				v = uint8(255 * x / w)
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestParseAlgorithm(t *testing.T) {
	for _, name := range []string{"ahash", "dhash", "phash"} {
		algorithm, err := ParseAlgorithm(name)
		require.NoError(t, err)
		require.Equal(t, Algorithm(name), algorithm)
	}

	_, err := ParseAlgorithm("md5")
	require.Error(t, err)
}

func TestHasher_SameImageZeroDistance(t *testing.T) {
	for _, algorithm := range []Algorithm{AlgorithmAverage, AlgorithmDifference, AlgorithmPerceptual} {
		hasher := NewHasher(algorithm)
		img := gradientImage(400, 300, true)

		a, err := hasher.Fingerprint(img)
		require.NoError(t, err)
		b, err := hasher.Fingerprint(img)
		require.NoError(t, err)

		dist, err := hasher.Distance(a, b)
		require.NoError(t, err)
		require.Zero(t, dist, "algorithm %s", algorithm)
	}
}

func TestHasher_ReencodedImageZeroDistance(t *testing.T) {
	// PNG is lossless, so a re-encoded copy must fingerprint
	// identically; this is what makes cross-page duplicates of the
	// same figure detectable.
	hasher := NewHasher(AlgorithmPerceptual)
	original := gradientImage(400, 300, true)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, original))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)

	a, err := hasher.Fingerprint(original)
	require.NoError(t, err)
	b, err := hasher.Fingerprint(decoded)
	require.NoError(t, err)

	dist, err := hasher.Distance(a, b)
	require.NoError(t, err)
	require.Zero(t, dist)
}

func TestHasher_DistanceSymmetric(t *testing.T) {
	hasher := NewHasher(AlgorithmPerceptual)

	a, err := hasher.Fingerprint(gradientImage(400, 300, true))
	require.NoError(t, err)
	b, err := hasher.Fingerprint(gradientImage(400, 300, false))
	require.NoError(t, err)

	ab, err := hasher.Distance(a, b)
	require.NoError(t, err)
	ba, err := hasher.Distance(b, a)
	require.NoError(t, err)
	require.Equal(t, ab, ba)
}

func TestHasher_VariantsNotComparable(t *testing.T) {
	img := gradientImage(400, 300, true)

	a, err := NewHasher(AlgorithmAverage).Fingerprint(img)
	require.NoError(t, err)
	p, err := NewHasher(AlgorithmPerceptual).Fingerprint(img)
	require.NoError(t, err)

	_, err = NewHasher(AlgorithmPerceptual).Distance(a, p)
	require.Error(t, err)
}

func TestHasher_ZeroValueFingerprint(t *testing.T) {
	hasher := NewHasher(AlgorithmPerceptual)

	require.Empty(t, Fingerprint{}.String())

	valid, err := hasher.Fingerprint(gradientImage(64, 64, true))
	require.NoError(t, err)
	require.NotEmpty(t, valid.String())

	_, err = hasher.Distance(valid, Fingerprint{})
	require.Error(t, err)
}
