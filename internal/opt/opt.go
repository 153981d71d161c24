// Package opt provides optimization algorithms.
package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Optimizer updates a parameter buffer in-place from its gradient buffer.
// Stateful optimizers keep per-buffer moment estimates, so use a separate
// instance per parameter buffer.
type Optimizer interface {
	// Step updates params in-place: params = params - lr * update
	Step(params, gradients []float64)

	// LR returns the current learning rate.
	LR() float64

	// SetLR replaces the learning rate. Schedulers call this between epochs.
	SetLR(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// Step updates params in-place: params = params - lr * gradients
func (s *SGD) Step(params, gradients []float64) {
	if len(params) != len(gradients) {
		panic("SGD: params and gradients must have same length")
	}
	floats.AddScaled(params, -s.LearningRate, gradients)
}

func (s *SGD) LR() float64      { return s.LearningRate }
func (s *SGD) SetLR(lr float64) { s.LearningRate = lr }

// Adam optimizer for faster convergence.
type Adam struct {
	LearningRate float64
	Beta1        float64 // Exponential decay rate for first moment
	Beta2        float64 // Exponential decay rate for second moment
	Epsilon      float64 // Small constant for numerical stability

	step int
	m    []float64 // First moment estimate
	v    []float64 // Second moment estimate
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Step updates params in-place using bias-corrected moment estimates.
// PyTorch reference: torch.optim.Adam
func (a *Adam) Step(params, gradients []float64) {
	if len(params) != len(gradients) {
		panic("Adam: params and gradients must have same length")
	}
	if a.m == nil {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
	}
	if len(a.m) != len(params) {
		panic("Adam: parameter count changed between steps")
	}

	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i, g := range gradients {
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g

		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

func (a *Adam) LR() float64      { return a.LearningRate }
func (a *Adam) SetLR(lr float64) { a.LearningRate = lr }
