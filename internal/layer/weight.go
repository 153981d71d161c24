package layer

import (
	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

// Weight couples a parameter tensor with its gradient accumulator.
// Gradient entry points add into Grad; the accumulator is cleared by the
// caller once the update has been applied.
type Weight struct {
	Name  string
	Value *tensor.Tensor // (1, rows, cols)
	Grad  *tensor.Tensor // same shape as Value
	Decay float64        // L2 coefficient, 0 disables
}

// newWeight allocates a (rows, cols) parameter and its gradient, filling
// the parameter from init.
func newWeight(name string, rows, cols int, init Initializer, fanIn, fanOut int, src rand.Source, decay float64) *Weight {
	w := &Weight{
		Name:  name,
		Value: tensor.New(1, rows, cols),
		Grad:  tensor.New(1, rows, cols),
		Decay: decay,
	}
	init.Fill(w.Value.Data(), fanIn, fanOut, src)
	return w
}

// ZeroGrad clears the gradient accumulator.
func (w *Weight) ZeroGrad() {
	w.Grad.Zero()
}
