// Package activations provides activation functions and their
// output-based backward forms.
package activations

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Activation computes a function over a slice and its gradient given the
// forward output. Backward takes the forward output y = f(x) rather than
// the pre-activation input, so callers only cache what the forward pass
// already produced.
type Activation interface {
	// Forward computes f(x) into dst. dst and x may alias.
	Forward(dst, x []float64)

	// Backward computes dL/dx into dst given the forward output out and
	// the incoming gradient grad. dst and grad may alias.
	Backward(dst, out, grad []float64)
}

// Sigmoid activation function.
type Sigmoid struct{}

// Forward computes 1/(1+exp(-x)).
func (Sigmoid) Forward(dst, x []float64) {
	for i, v := range x {
		dst[i] = 1 / (1 + math.Exp(-v))
	}
}

// Backward computes out*(1-out)*grad.
func (Sigmoid) Backward(dst, out, grad []float64) {
	for i := range dst {
		dst[i] = out[i] * (1 - out[i]) * grad[i]
	}
}

// Tanh activation function.
type Tanh struct{}

// Forward computes tanh(x).
func (Tanh) Forward(dst, x []float64) {
	for i, v := range x {
		dst[i] = math.Tanh(v)
	}
}

// Backward computes (1-out^2)*grad.
func (Tanh) Backward(dst, out, grad []float64) {
	for i := range dst {
		dst[i] = (1 - out[i]*out[i]) * grad[i]
	}
}

// Softmax activation function over a full slice.
type Softmax struct{}

// Forward computes exp(x-max)/sum(exp(x-max)).
func (Softmax) Forward(dst, x []float64) {
	maxVal := floats.Max(x)
	sum := 0.0
	for i, v := range x {
		dst[i] = math.Exp(v - maxVal)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// Backward computes the full softmax Jacobian product:
// dst_i = out_i * (grad_i - sum_j grad_j*out_j).
func (Softmax) Backward(dst, out, grad []float64) {
	dot := floats.Dot(grad, out)
	for i := range dst {
		dst[i] = out[i] * (grad[i] - dot)
	}
}
