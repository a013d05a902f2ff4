package loader

// DetectRGB reports whether shape looks like interleaved color data: a
// trailing axis of extent 3 (RGB) or 4 (RGBA) behind at least two spatial
// axes, with no other axis of that same extent to be confused with it.
func DetectRGB(shape []int) bool {
	n := len(shape)
	if n < 3 {
		return false
	}
	c := shape[n-1]
	if c != 3 && c != 4 {
		return false
	}
	for _, s := range shape[:n-1] {
		if s == c {
			return false
		}
	}
	return true
}

// spatialAxes returns the positions of the x and y axes. For RGB data the
// color axis sits behind them.
func spatialAxes(rank int, rgb bool) (x, y int) {
	if rgb {
		return rank - 2, rank - 3
	}
	return rank - 1, rank - 2
}
