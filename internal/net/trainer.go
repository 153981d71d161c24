package net

import (
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
	"github.com/FlavioCFOliveira/GoAttention/internal/opt"
)

// Trainer applies per-weight optimizers to a set of trainable weights.
// Stateful optimizers keep moment estimates per buffer, so every weight
// gets its own instance from the factory.
type Trainer struct {
	weights []*layer.Weight
	opts    []opt.Optimizer
}

// NewTrainer creates a trainer over the given weights. factory builds one
// optimizer per weight.
func NewTrainer(weights []*layer.Weight, factory func() opt.Optimizer) *Trainer {
	if len(weights) == 0 {
		panic("Trainer: no weights")
	}
	t := &Trainer{
		weights: weights,
		opts:    make([]opt.Optimizer, len(weights)),
	}
	for i := range weights {
		t.opts[i] = factory()
	}
	return t
}

// Step folds each weight's decay into its gradient, applies the update and
// clears the gradient accumulators for the next step.
func (t *Trainer) Step() {
	for i, wt := range t.weights {
		if wt.Decay != 0 {
			floats.AddScaled(wt.Grad.Data(), wt.Decay, wt.Value.Data())
		}
		t.opts[i].Step(wt.Value.Data(), wt.Grad.Data())
	}
	t.ZeroGrad()
}

// ZeroGrad clears every weight's gradient accumulator.
func (t *Trainer) ZeroGrad() {
	for _, wt := range t.weights {
		wt.ZeroGrad()
	}
}

// LR returns the learning rate of the per-weight optimizers.
func (t *Trainer) LR() float64 { return t.opts[0].LR() }

// SetLR replaces the learning rate on every per-weight optimizer, making
// the trainer schedulable as a single opt.LRTarget.
func (t *Trainer) SetLR(lr float64) {
	for _, o := range t.opts {
		o.SetLR(lr)
	}
}
