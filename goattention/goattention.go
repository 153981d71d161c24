package goattention

import (
	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
	"github.com/FlavioCFOliveira/GoAttention/internal/loss"
	"github.com/FlavioCFOliveira/GoAttention/internal/net"
	"github.com/FlavioCFOliveira/GoAttention/internal/opt"
	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

// Re-export common types and functions for easier access
type (
	Tensor       = tensor.Tensor
	View         = tensor.View
	MoLAttention = layer.MoLAttention
	MoLConfig    = layer.MoLConfig
	DotAttention = layer.DotAttention
	Weight       = layer.Weight
	Initializer  = layer.Initializer
	Optimizer    = opt.Optimizer
	LRTarget     = opt.LRTarget
	Scheduler    = opt.Scheduler
	Loss         = loss.Loss
	Stepper      = net.Stepper
	Trainer      = net.Trainer
	GGMLType     = net.GGMLType
)

// Errors
var (
	ErrConfiguration = layer.ErrConfiguration
	ErrShapeMismatch = layer.ErrShapeMismatch
)

// Initializers
const (
	Zeros         = layer.Zeros
	Ones          = layer.Ones
	XavierUniform = layer.XavierUniform
	XavierNormal  = layer.XavierNormal
	HeUniform     = layer.HeUniform
	HeNormal      = layer.HeNormal
	LecunUniform  = layer.LecunUniform
	LecunNormal   = layer.LecunNormal
)

// Tensors
func NewTensor(batch, rows, cols int) *Tensor {
	return tensor.New(batch, rows, cols)
}

func TensorFromSlice(batch, rows, cols int, data []float64) *Tensor {
	return tensor.FromSlice(batch, rows, cols, data)
}

// Layers
func NewMoLAttention(cfg MoLConfig) (*MoLAttention, error) {
	return layer.NewMoLAttention(cfg)
}

func NewDotAttention(width int, scaled bool) (*DotAttention, error) {
	return layer.NewDotAttention(width, scaled)
}

// Stepping
func NewStepper(l *MoLAttention, batch int) *Stepper {
	return net.NewStepper(l, batch)
}

// Optimizers
func SGD(lr float64) Optimizer {
	return &opt.SGD{LearningRate: lr}
}

func Adam(lr float64) Optimizer {
	return opt.NewAdam(lr)
}

func NewTrainer(weights []*Weight, factory func() Optimizer) *Trainer {
	return net.NewTrainer(weights, factory)
}

// Schedulers
func StepLR(target LRTarget, stepSize int, gamma float64) *opt.StepLR {
	return opt.NewStepLR(target, stepSize, gamma)
}

func ExponentialLR(target LRTarget, gamma float64) *opt.ExponentialLR {
	return opt.NewExponentialLR(target, gamma)
}

func ReduceLROnPlateau(target LRTarget, factor float64, patience int, threshold, minLR float64) *opt.ReduceLROnPlateau {
	return opt.NewReduceLROnPlateau(target, factor, patience, threshold, minLR)
}

// Losses
var MSE = loss.MSE{}

func Huber(delta float64) Loss {
	return loss.NewHuber(delta)
}

// Model Persistence
func Save(filename string, l *MoLAttention) error {
	return net.SaveMoL(filename, l)
}

func Load(filename string) (*MoLAttention, error) {
	return net.LoadMoL(filename)
}

// GGUF Export
const (
	GGUFF32 = net.GGMLTypeF32
	GGUFF16 = net.GGMLTypeF16
)

func ExportGGUF(filename, arch string, weights []*Weight, dtype GGMLType) error {
	return net.ExportGGUF(filename, arch, weights, dtype)
}
