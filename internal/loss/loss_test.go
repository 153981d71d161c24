package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

func TestMSEForward(t *testing.T) {
	pred := tensor.FromSlice(1, 2, 2, []float64{1, 2, 3, 4})
	target := tensor.FromSlice(1, 2, 2, []float64{0, 2, 1, 8})

	// diffs 1, 0, 2, -4 -> (1 + 0 + 4 + 16) / 4
	got := MSE{}.Forward(pred, target)
	require.InDelta(t, 5.25, got, 1e-12)
}

func TestMSEBackward(t *testing.T) {
	pred := tensor.FromSlice(1, 2, 2, []float64{1, 2, 3, 4})
	target := tensor.FromSlice(1, 2, 2, []float64{0, 2, 1, 8})
	grad := tensor.New(1, 2, 2)

	MSE{}.Backward(grad, pred, target)

	want := []float64{0.5, 0, 1, -2}
	for i, w := range want {
		if g := grad.Data()[i]; math.Abs(g-w) > 1e-12 {
			t.Errorf("grad[%d] = %v, want %v", i, g, w)
		}
	}
}

func TestHuberForward(t *testing.T) {
	pred := tensor.FromSlice(1, 1, 2, []float64{0.5, -2})
	target := tensor.FromSlice(1, 1, 2, []float64{0, 0})

	// |0.5| <= 1 -> 0.125; |-2| > 1 -> 1*(2 - 0.5) = 1.5
	got := NewHuber(1.0).Forward(pred, target)
	require.InDelta(t, 1.625/2, got, 1e-12)
}

// TestBackwardMatchesNumeric checks every analytic gradient against a
// central-difference estimate of Forward.
func TestBackwardMatchesNumeric(t *testing.T) {
	losses := map[string]Loss{
		"mse":   MSE{},
		"huber": NewHuber(1.0),
	}

	// Values chosen away from the Huber kink at |diff| == delta.
	pred := tensor.FromSlice(2, 1, 3, []float64{0.3, -1.7, 0.05, 2.4, -0.6, 0.9})
	target := tensor.FromSlice(2, 1, 3, []float64{0.1, 0.2, -0.4, 0.0, -0.2, 1.6})

	const h = 1e-6
	for name, l := range losses {
		grad := tensor.New(2, 1, 3)
		l.Backward(grad, pred, target)

		data := pred.Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + h
			plus := l.Forward(pred, target)
			data[i] = orig - h
			minus := l.Forward(pred, target)
			data[i] = orig

			numeric := (plus - minus) / (2 * h)
			if math.Abs(numeric-grad.Data()[i]) > 1e-6 {
				t.Errorf("%s: grad[%d] = %v, numeric %v", name, i, grad.Data()[i], numeric)
			}
		}
	}
}

func TestShapePanics(t *testing.T) {
	pred := tensor.New(1, 2, 2)
	short := tensor.New(1, 2, 1)
	grad := tensor.New(1, 2, 2)

	require.Panics(t, func() { MSE{}.Forward(pred, short) })
	require.Panics(t, func() { MSE{}.Backward(grad, pred, short) })
	require.Panics(t, func() { MSE{}.Backward(short, pred, pred) })
	require.Panics(t, func() { NewHuber(1).Forward(pred, short) })
	require.Panics(t, func() { NewHuber(1).Backward(short, pred, pred) })
}
