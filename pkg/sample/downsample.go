package sample

// Decimate reduces src to at most maxPoints elements for display by picking
// evenly spaced elements. A non-positive maxPoints keeps everything.
// Destination-based: reuses dst if it has sufficient capacity, otherwise
// allocates new. Returns the destination slice.
func Decimate[T any](dst, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}
