package layer

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

// TestInitializerFill tests the constant schemes and the spread of the
// random ones.
func TestInitializerFill(t *testing.T) {
	dst := make([]float64, 64)

	Zeros.Fill(dst, 8, 8, nil)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("Zeros dst[%d] = %v", i, v)
		}
	}

	Ones.Fill(dst, 8, 8, nil)
	for i, v := range dst {
		if v != 1 {
			t.Fatalf("Ones dst[%d] = %v", i, v)
		}
	}
}

// TestInitializerBounds tests that uniform schemes respect their fan-in
// derived limits.
func TestInitializerBounds(t *testing.T) {
	const fanIn, fanOut = 16, 24
	cases := map[Initializer]float64{
		XavierUniform: math.Sqrt(6.0 / float64(fanIn+fanOut)),
		HeUniform:     math.Sqrt(6.0 / float64(fanIn)),
		LecunUniform:  math.Sqrt(3.0 / float64(fanIn)),
	}

	for init, limit := range cases {
		dst := make([]float64, 512)
		init.Fill(dst, fanIn, fanOut, rand.NewSource(11))
		for i, v := range dst {
			if v < -limit || v > limit {
				t.Errorf("init %d: dst[%d] = %v outside [%v, %v]", init, i, v, -limit, limit)
			}
		}
	}
}

// TestInitializerDeterministic tests that the same source reproduces the
// same draw.
func TestInitializerDeterministic(t *testing.T) {
	a := make([]float64, 32)
	b := make([]float64, 32)

	XavierNormal.Fill(a, 8, 8, rand.NewSource(5))
	XavierNormal.Fill(b, 8, 8, rand.NewSource(5))

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw differs at %d: %v vs %v", i, a[i], b[i])
		}
	}

	// Normal schemes must actually spread.
	mean := 0.0
	for _, v := range a {
		mean += v
	}
	mean /= float64(len(a))
	varSum := 0.0
	for _, v := range a {
		varSum += (v - mean) * (v - mean)
	}
	if varSum == 0 {
		t.Error("XavierNormal produced a constant fill")
	}
}
