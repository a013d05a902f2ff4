package loader

import "testing"

func TestDetectRGB(t *testing.T) {
	cases := []struct {
		shape []int
		want  bool
	}{
		{[]int{500, 250, 3}, true},
		{[]int{2, 500, 250, 4}, true},
		{[]int{2, 500, 250}, false},
		{[]int{500, 3}, false},
		{[]int{3, 500, 250, 3}, false},
		{[]int{1, 4, 250, 4}, false},
		{[]int{2, 500, 250, 5}, false},
		{[]int{}, false},
	}
	for _, c := range cases {
		if got := DetectRGB(c.shape); got != c.want {
			t.Errorf("DetectRGB(%v) = %t, want %t", c.shape, got, c.want)
		}
	}
}

func TestSpatialAxes(t *testing.T) {
	if x, y := spatialAxes(3, false); x != 2 || y != 1 {
		t.Errorf("non-rgb rank 3: got x=%d y=%d", x, y)
	}
	if x, y := spatialAxes(4, true); x != 2 || y != 1 {
		t.Errorf("rgb rank 4: got x=%d y=%d", x, y)
	}
}
