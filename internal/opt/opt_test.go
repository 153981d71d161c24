package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSGDStep(t *testing.T) {
	params := []float64{1, 2}
	grads := []float64{0.5, -1}

	sgd := &SGD{LearningRate: 0.1}
	sgd.Step(params, grads)

	want := []float64{0.95, 2.1}
	for i, w := range want {
		if math.Abs(params[i]-w) > 1e-12 {
			t.Errorf("params[%d] = %v, want %v", i, params[i], w)
		}
	}
}

func TestSGDLengthPanic(t *testing.T) {
	sgd := &SGD{LearningRate: 0.1}
	require.Panics(t, func() { sgd.Step([]float64{1, 2}, []float64{1}) })
}

func TestAdamDefaults(t *testing.T) {
	a := NewAdam(0.001)
	require.Equal(t, 0.001, a.LearningRate)
	require.Equal(t, 0.9, a.Beta1)
	require.Equal(t, 0.999, a.Beta2)
	require.Equal(t, 1e-8, a.Epsilon)
}

// TestAdamFirstStep checks the bias-corrected update by hand: on the first
// step both moment corrections cancel, so the update is lr*g/(|g|+eps).
func TestAdamFirstStep(t *testing.T) {
	a := NewAdam(0.01)
	params := []float64{1.0}

	a.Step(params, []float64{1.0})

	want := 1.0 - 0.01/(1.0+1e-8)
	require.InDelta(t, want, params[0], 1e-14)
}

func TestAdamConverges(t *testing.T) {
	// Minimize (x-3)^2 from x=0.
	a := NewAdam(0.1)
	params := []float64{0.0}

	for i := 0; i < 1000; i++ {
		grad := 2 * (params[0] - 3)
		a.Step(params, []float64{grad})
	}

	if math.Abs(params[0]-3) > 0.05 {
		t.Errorf("x = %v, want near 3", params[0])
	}
}

func TestAdamLengthChangePanic(t *testing.T) {
	a := NewAdam(0.01)
	a.Step(make([]float64, 2), make([]float64, 2))

	require.Panics(t, func() { a.Step(make([]float64, 3), make([]float64, 3)) })
	require.Panics(t, func() { a.Step(make([]float64, 2), make([]float64, 3)) })
}

func TestStepLR(t *testing.T) {
	sgd := &SGD{LearningRate: 1.0}
	sched := NewStepLR(sgd, 2, 0.5)

	lrs := make([]float64, 0, 4)
	for i := 0; i < 4; i++ {
		sched.Step()
		lrs = append(lrs, sgd.LR())
	}

	want := []float64{1.0, 0.5, 0.5, 0.25}
	for i, w := range want {
		if math.Abs(lrs[i]-w) > 1e-12 {
			t.Errorf("lr after epoch %d = %v, want %v", i+1, lrs[i], w)
		}
	}
}

func TestExponentialLR(t *testing.T) {
	sgd := &SGD{LearningRate: 1.0}
	sched := NewExponentialLR(sgd, 0.9)

	for i := 0; i < 3; i++ {
		sched.Step()
	}
	require.InDelta(t, 0.729, sgd.LR(), 1e-12)
}

func TestReduceLROnPlateau(t *testing.T) {
	sgd := &SGD{LearningRate: 1.0}
	sched := NewReduceLROnPlateau(sgd, 0.1, 2, 0.0, 1e-3)

	sched.StepWithLoss(1.0) // best
	sched.StepWithLoss(1.0) // bad 1
	require.Equal(t, 1.0, sgd.LR())

	sched.StepWithLoss(1.0) // bad 2 -> reduce
	require.InDelta(t, 0.1, sgd.LR(), 1e-12)

	sched.StepWithLoss(0.5) // improvement resets the counter
	sched.StepWithLoss(0.6)
	require.InDelta(t, 0.1, sgd.LR(), 1e-12)

	// Repeated plateaus clamp at minLR.
	for i := 0; i < 10; i++ {
		sched.StepWithLoss(0.6)
	}
	require.InDelta(t, 1e-3, sgd.LR(), 1e-12)
}
