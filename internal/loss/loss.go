// Package loss provides loss functions over batched tensors.
package loss

import (
	"math"

	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
	"gonum.org/v1/gonum/floats"
)

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the mean loss between prediction and target.
	Forward(pred, target *tensor.Tensor) float64

	// Backward computes the gradient of the loss w.r.t. prediction and
	// stores it in grad. All three tensors must share a shape.
	Backward(grad, pred, target *tensor.Tensor)
}

func sameShape(a, b *tensor.Tensor) bool {
	return a.Batch() == b.Batch() && a.Rows() == b.Rows() && a.Cols() == b.Cols()
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((pred - target)^2)
// where n counts every element across the batch.
func (MSE) Forward(pred, target *tensor.Tensor) float64 {
	if !sameShape(pred, target) {
		panic("MSE: prediction and target must have same shape")
	}

	p, t := pred.Data(), target.Data()
	var sum float64
	for i := range p {
		diff := p[i] - t[i]
		sum += diff * diff
	}
	return sum / float64(len(p))
}

// Backward computes gradient: dL/dpred = (2/n) * (pred - target).
func (MSE) Backward(grad, pred, target *tensor.Tensor) {
	if !sameShape(pred, target) {
		panic("MSE: prediction and target must have same shape")
	}
	if !sameShape(grad, pred) {
		panic("MSE: gradient must have same shape as prediction")
	}

	g := grad.Data()
	floats.SubTo(g, pred.Data(), target.Data())
	floats.Scale(2.0/float64(len(g)), g)
}

// Huber loss for robust regression.
type Huber struct {
	Delta float64 // Threshold for quadratic/linear transition
}

// NewHuber creates a Huber loss with the given delta.
func NewHuber(delta float64) *Huber {
	return &Huber{Delta: delta}
}

// Forward computes Huber loss averaged over every element.
func (h Huber) Forward(pred, target *tensor.Tensor) float64 {
	if !sameShape(pred, target) {
		panic("Huber: prediction and target must have same shape")
	}

	p, t := pred.Data(), target.Data()
	var sum float64
	for i := range p {
		diff := math.Abs(p[i] - t[i])
		if diff <= h.Delta {
			sum += 0.5 * diff * diff
		} else {
			sum += h.Delta * (diff - 0.5*h.Delta)
		}
	}
	return sum / float64(len(p))
}

// Backward computes gradient for Huber loss.
func (h Huber) Backward(grad, pred, target *tensor.Tensor) {
	if !sameShape(pred, target) {
		panic("Huber: prediction and target must have same shape")
	}
	if !sameShape(grad, pred) {
		panic("Huber: gradient must have same shape as prediction")
	}

	p, t, g := pred.Data(), target.Data(), grad.Data()
	n := float64(len(p))
	for i := range p {
		diff := p[i] - t[i]
		if math.Abs(diff) <= h.Delta {
			g[i] = diff / n
		} else {
			g[i] = h.Delta * math.Copysign(1, diff) / n
		}
	}
}
