package activations

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// numericBackward approximates dL/dx for L = sum(grad .* f(x)) with
// central differences.
func numericBackward(a Activation, x, grad []float64) []float64 {
	const h = 1e-6
	out := make([]float64, len(x))
	dx := make([]float64, len(x))
	for i := range x {
		orig := x[i]

		x[i] = orig + h
		a.Forward(out, x)
		plus := floats.Dot(grad, out)

		x[i] = orig - h
		a.Forward(out, x)
		minus := floats.Dot(grad, out)

		x[i] = orig
		dx[i] = (plus - minus) / (2 * h)
	}
	return dx
}

func TestSigmoidForward(t *testing.T) {
	s := Sigmoid{}
	x := []float64{0, 2, -2}
	out := make([]float64, 3)

	s.Forward(out, x)

	want := []float64{0.5, 1 / (1 + math.Exp(-2)), 1 / (1 + math.Exp(2))}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestTanhForward(t *testing.T) {
	a := Tanh{}
	x := []float64{0, 1, -3}
	out := make([]float64, 3)

	a.Forward(out, x)

	for i := range x {
		if math.Abs(out[i]-math.Tanh(x[i])) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], math.Tanh(x[i]))
		}
	}
}

// TestSoftmaxForward tests normalization and shift invariance.
func TestSoftmaxForward(t *testing.T) {
	s := Softmax{}
	x := []float64{1, 2, 3}
	out := make([]float64, 3)

	s.Forward(out, x)

	if math.Abs(floats.Sum(out)-1) > 1e-12 {
		t.Errorf("sum = %v, want 1", floats.Sum(out))
	}
	if !(out[2] > out[1] && out[1] > out[0]) {
		t.Errorf("softmax not monotone: %v", out)
	}

	// Shifting logits must not change the output.
	shifted := []float64{1001, 1002, 1003}
	out2 := make([]float64, 3)
	s.Forward(out2, shifted)
	if !floats.EqualApprox(out, out2, 1e-12) {
		t.Errorf("shifted softmax = %v, want %v", out2, out)
	}
}

// TestSoftmaxForwardInPlace tests dst aliasing x.
func TestSoftmaxForwardInPlace(t *testing.T) {
	s := Softmax{}
	x := []float64{0.5, -0.5, 2}
	want := make([]float64, 3)
	s.Forward(want, x)

	s.Forward(x, x)
	if !floats.EqualApprox(x, want, 1e-12) {
		t.Errorf("in-place softmax = %v, want %v", x, want)
	}
}

// TestBackwardMatchesNumeric tests every activation's output-based
// backward against central differences.
func TestBackwardMatchesNumeric(t *testing.T) {
	acts := map[string]Activation{
		"sigmoid": Sigmoid{},
		"tanh":    Tanh{},
		"softmax": Softmax{},
	}
	x := []float64{0.3, -1.2, 0.8, 2.1}
	grad := []float64{1, -0.5, 0.25, 0.75}

	for name, a := range acts {
		out := make([]float64, len(x))
		a.Forward(out, x)

		dx := make([]float64, len(x))
		a.Backward(dx, out, grad)

		want := numericBackward(a, x, grad)
		for i := range dx {
			if math.Abs(dx[i]-want[i]) > 1e-6 {
				t.Errorf("%s: dx[%d] = %v, want %v", name, i, dx[i], want[i])
			}
		}
	}
}

// TestBackwardAliasing tests that dst may alias grad.
func TestBackwardAliasing(t *testing.T) {
	s := Softmax{}
	x := []float64{0.1, 0.9, -0.4}
	out := make([]float64, 3)
	s.Forward(out, x)

	grad := []float64{0.2, -0.1, 0.5}
	want := make([]float64, 3)
	s.Backward(want, out, grad)

	s.Backward(grad, out, grad)
	if !floats.EqualApprox(grad, want, 1e-12) {
		t.Errorf("aliased backward = %v, want %v", grad, want)
	}
}
