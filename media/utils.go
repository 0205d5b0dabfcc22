package media

import "math"

// maxInt returns the maximum of two int values
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fitLongestEdge returns dimensions scaled so the longest side is at most
// maxSize, keeping the aspect ratio. Images already within bounds keep their size.
func fitLongestEdge(width, height, maxSize int) (int, int) {
	var newWidth, newHeight int
	if width > height {
		if width <= maxSize {
			newWidth, newHeight = width, height
		} else {
			newWidth = maxSize
			newHeight = int(math.Round(float64(height) * (float64(maxSize) / float64(width))))
		}
	} else {
		if height <= maxSize {
			newWidth, newHeight = width, height
		} else {
			newHeight = maxSize
			newWidth = int(math.Round(float64(width) * (float64(maxSize) / float64(height))))
		}
	}
	return maxInt(1, newWidth), maxInt(1, newHeight)
}
