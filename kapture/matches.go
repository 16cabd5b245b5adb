package kapture

import "sort"

// ImagePair is an unordered pair of matched images, stored with Image1 sorting
// before Image2 so that either insertion order lands on the same key.
type ImagePair struct {
	Image1 string
	Image2 string
}

// MakeImagePair normalizes two image paths into their canonical pair.
func MakeImagePair(a, b string) ImagePair {
	if b < a {
		a, b = b, a
	}
	return ImagePair{Image1: a, Image2: b}
}

// Matches is the set of image pairs that have been matched against each other.
type Matches map[ImagePair]struct{}

// Add registers a matched pair, in either order.
func (m Matches) Add(a, b string) {
	m[MakeImagePair(a, b)] = struct{}{}
}

// Has reports whether two images were matched, in either order.
func (m Matches) Has(a, b string) bool {
	_, ok := m[MakeImagePair(a, b)]
	return ok
}

// Pairs returns all pairs sorted by first then second image.
func (m Matches) Pairs() []ImagePair {
	out := make([]ImagePair, 0, len(m))
	for pair := range m {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Image1 != out[j].Image1 {
			return out[i].Image1 < out[j].Image1
		}
		return out[i].Image2 < out[j].Image2
	})
	return out
}
