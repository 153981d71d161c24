package net

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
	"github.com/FlavioCFOliveira/GoAttention/internal/loss"
	"github.com/FlavioCFOliveira/GoAttention/internal/opt"
	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

func TestTrainerStep(t *testing.T) {
	wt := &layer.Weight{
		Name:  "w",
		Value: tensor.FromSlice(1, 1, 2, []float64{2, 3}),
		Grad:  tensor.FromSlice(1, 1, 2, []float64{1, 0}),
		Decay: 0.1,
	}

	tr := NewTrainer([]*layer.Weight{wt}, func() opt.Optimizer {
		return &opt.SGD{LearningRate: 0.5}
	})
	tr.Step()

	// Decayed gradient: {1 + 0.1*2, 0 + 0.1*3} = {1.2, 0.3};
	// update: {2 - 0.5*1.2, 3 - 0.5*0.3}.
	require.InDelta(t, 1.4, wt.Value.At(0, 0, 0), 1e-12)
	require.InDelta(t, 2.85, wt.Value.At(0, 0, 1), 1e-12)
	require.Equal(t, []float64{0, 0}, wt.Grad.Data())
}

func TestTrainerPerWeightOptimizers(t *testing.T) {
	l := newTestLayer(t)

	made := 0
	NewTrainer(l.Weights(), func() opt.Optimizer {
		made++
		return opt.NewAdam(0.01)
	})
	require.Equal(t, 3, made)
}

func TestTrainerNoWeightsPanics(t *testing.T) {
	require.Panics(t, func() {
		NewTrainer(nil, func() opt.Optimizer { return &opt.SGD{LearningRate: 0.1} })
	})
}

func TestTrainerIsSchedulable(t *testing.T) {
	l := newTestLayer(t)
	tr := NewTrainer(l.Weights(), func() opt.Optimizer {
		return &opt.SGD{LearningRate: 1.0}
	})

	sched := opt.NewExponentialLR(tr, 0.5)
	for i := 0; i < 3; i++ {
		sched.Step()
	}
	require.InDelta(t, 0.125, tr.LR(), 1e-12)
}

// TestTrainingReducesLoss drives the full loop: forward, loss, backward,
// gradient accumulation and optimizer step. The target context comes from
// a layer with different weights, so an exact solution exists.
func TestTrainingReducesLoss(t *testing.T) {
	l := newTestLayer(t)

	ref, err := layer.NewMoLAttention(layer.MoLConfig{
		Units:       6,
		MixtureSize: 3,
		QueryWidth:  4,
		ValueWidth:  2,
		Seed:        99,
	})
	require.NoError(t, err)

	const batch, seqLen = 2, 5
	query := tensor.New(batch, 1, 4)
	value := tensor.New(batch, seqLen, 2)
	state := tensor.New(batch, 1, 3)
	fillSin(query.Data(), 0.3)
	fillSin(value.Data(), 1.1)

	refCtx, err := ref.Forward(query, value, state)
	require.NoError(t, err)
	target := refCtx.Clone()

	tr := NewTrainer(l.Weights(), func() opt.Optimizer {
		return opt.NewAdam(0.01)
	})
	mse := loss.MSE{}
	dCtx := tensor.New(batch, 1, 2)

	step := func() float64 {
		ctx, err := l.Forward(query, value, state)
		require.NoError(t, err)
		stepLoss := mse.Forward(ctx, target)
		mse.Backward(dCtx, ctx, target)
		require.NoError(t, l.CalcGradient(dCtx))
		tr.Step()
		return stepLoss
	}

	first := step()
	var last float64
	for i := 0; i < 199; i++ {
		last = step()
	}
	require.Less(t, last, first*0.9)
}
