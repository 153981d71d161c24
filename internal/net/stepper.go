// Package net provides training, persistence and export helpers around
// attention layers.
package net

import (
	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

// Stepper drives a MoLAttention layer across decoding steps, carrying the
// per-component location state from one step into the next. It is an
// inference driver: it keeps no per-step caches for backward passes.
type Stepper struct {
	layer *layer.MoLAttention
	state *tensor.Tensor // (B,1,MixtureSize)
}

// NewStepper creates a stepper over l with a zero location state for the
// given batch size.
func NewStepper(l *layer.MoLAttention, batch int) *Stepper {
	return &Stepper{
		layer: l,
		state: tensor.New(batch, 1, l.MixtureSize()),
	}
}

// Reset clears the location state so the next Step attends from the start
// of the sequence again, resizing for a new batch size if needed.
func (s *Stepper) Reset(batch int) {
	if batch != s.state.Batch() {
		s.state.Resize(batch, 1, s.layer.MixtureSize())
		return
	}
	s.state.Zero()
}

// State returns the carried per-component locations. The tensor is owned
// by the stepper.
func (s *Stepper) State() *tensor.Tensor { return s.state }

// Step attends over value with the current state and advances the state to
// the components' new absolute centers. The returned context is owned by
// the layer and overwritten on the next step.
func (s *Stepper) Step(query, value *tensor.Tensor) (*tensor.Tensor, error) {
	ctx, err := s.layer.Forward(query, value, s.state)
	if err != nil {
		return nil, err
	}
	s.state.CopyFrom(s.layer.AbsoluteCenter())
	return ctx, nil
}
