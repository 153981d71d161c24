package opt

import "math"

// LRTarget is anything with an adjustable learning rate. Every Optimizer
// satisfies it, as does any fan-out wrapper over several optimizers.
type LRTarget interface {
	LR() float64
	SetLR(lr float64)
}

// Scheduler adjusts a target's learning rate between epochs.
type Scheduler interface {
	Step()
	StepWithLoss(loss float64)
}

// BaseScheduler provides default implementations for Scheduler.
type BaseScheduler struct{}

func (BaseScheduler) Step()                {}
func (BaseScheduler) StepWithLoss(float64) {}

// StepLR decays the learning rate by gamma every stepSize epochs.
type StepLR struct {
	BaseScheduler
	target   LRTarget
	stepSize int
	gamma    float64
	epoch    int
}

func NewStepLR(target LRTarget, stepSize int, gamma float64) *StepLR {
	return &StepLR{target: target, stepSize: stepSize, gamma: gamma}
}

func (s *StepLR) Step() {
	s.epoch++
	if s.epoch%s.stepSize == 0 {
		s.target.SetLR(s.target.LR() * s.gamma)
	}
}

// ExponentialLR decays the learning rate by gamma every epoch.
type ExponentialLR struct {
	BaseScheduler
	target LRTarget
	gamma  float64
}

func NewExponentialLR(target LRTarget, gamma float64) *ExponentialLR {
	return &ExponentialLR{target: target, gamma: gamma}
}

func (s *ExponentialLR) Step() {
	s.target.SetLR(s.target.LR() * s.gamma)
}

// ReduceLROnPlateau reduces the learning rate when a metric has stopped
// improving for patience epochs.
type ReduceLROnPlateau struct {
	BaseScheduler
	target    LRTarget
	factor    float64
	patience  int
	threshold float64
	minLR     float64

	bestLoss  float64
	badEpochs int
}

func NewReduceLROnPlateau(target LRTarget, factor float64, patience int, threshold, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		target:    target,
		factor:    factor,
		patience:  patience,
		threshold: threshold,
		minLR:     minLR,
		bestLoss:  math.Inf(1),
	}
}

func (s *ReduceLROnPlateau) StepWithLoss(loss float64) {
	if loss < s.bestLoss-s.threshold {
		s.bestLoss = loss
		s.badEpochs = 0
		return
	}

	s.badEpochs++
	if s.badEpochs < s.patience {
		return
	}

	lr := s.target.LR() * s.factor
	if lr < s.minLR {
		lr = s.minLR
	}
	s.target.SetLR(lr)
	s.badEpochs = 0
}
