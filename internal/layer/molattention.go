// Package layer provides attention layer implementations.
package layer

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/GoAttention/internal/activations"
	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

// scaleEpsilon keeps the logistic scale strictly positive before it is
// used as a divisor.
const scaleEpsilon = 1e-8

// MoLConfig configures a MoLAttention layer.
type MoLConfig struct {
	Units       int // width of the tanh projection
	MixtureSize int // number of logistic components
	QueryWidth  int
	ValueWidth  int

	WeightInit Initializer // DefaultInit resolves to XavierUniform
	BiasInit   Initializer // DefaultInit resolves to Zeros
	Decay      float64     // L2 coefficient for the projection weights
	Seed       uint64
}

// backwardState tracks whether the shared backward chain has run for the
// current step.
type backwardState uint8

const (
	backwardPending backwardState = iota
	backwardComputed
)

// MoLAttention is location-aware attention over a mixture of discretized
// logistics. Each step projects the query through a tanh layer into one
// packed buffer of mixture parameters (shift, scale and component weight
// logits), advances the carried location state by the positive shifts,
// and scores every value timestep with the discretized logistic CDF mass
// that falls on it:
//
//	prob(t,k) = sigmoid((t+1.5-center_k)/scale_k) - sigmoid((t+0.5-center_k)/scale_k)
//	score(t)  = sum_k prob(t,k) * weight_k
//	context   = score · value
//
// Shapes per step: query (B,1,QueryWidth), value (B,T,ValueWidth),
// state (B,1,MixtureSize), context (B,1,ValueWidth). The layer does not
// mutate the state input; callers carry AbsoluteCenter into the next
// step's state to keep attention advancing monotonically.
//
// The backward pass is split in two entry points sharing one cached
// chain: CalcDerivative produces input gradients and CalcGradient
// accumulates weight gradients. Within a step both must receive the same
// context gradient; the shared portion is computed once regardless of
// call order.
type MoLAttention struct {
	cfg MoLConfig

	units       int
	mixtureSize int
	queryWidth  int
	valueWidth  int

	// Parameters
	fcW    *Weight // (QueryWidth, Units)
	fcBias *Weight // (1, Units)
	projW  *Weight // (Units, 3*MixtureSize), no bias

	// Borrowed step inputs, valid until the next Forward
	query *tensor.Tensor
	value *tensor.Tensor
	state *tensor.Tensor

	// Step scratch, resized when batch or sequence length changes
	batch     int
	seqLen    int
	fcOut     *tensor.Tensor // (B,1,U) pre-activation
	fcTanh    *tensor.Tensor // (B,1,U)
	packed    *tensor.Tensor // (B,1,3K), transformed in place after projection
	shiftV    tensor.View    // packed[0:K], exp-transformed
	scaleV    tensor.View    // packed[K:2K], exp-transformed
	weightV   tensor.View    // packed[2K:3K], softmax-transformed
	center    *tensor.Tensor // (B,1,K) state + shift
	safeScale *tensor.Tensor // (B,1,K) scale + epsilon
	leftArg   *tensor.Tensor // (B,T,K) upper CDF argument, pre-sigmoid
	rightArg  *tensor.Tensor // (B,T,K) lower CDF argument, pre-sigmoid
	probLeft  *tensor.Tensor // (B,T,K)
	probRight *tensor.Tensor // (B,T,K)
	prob      *tensor.Tensor // (B,T,K)
	scores    *tensor.Tensor // (B,1,T)
	ctx       *tensor.Tensor // (B,1,ValueWidth)

	// Backward scratch
	bwState  backwardState
	dScores  *tensor.Tensor // (B,1,T)
	dPacked  *tensor.Tensor // (B,1,3K) gradient at the packed logits
	dShiftV  tensor.View
	dScaleV  tensor.View
	dWeightV tensor.View
	dState   *tensor.Tensor // (B,1,K)
	dFcTanh  *tensor.Tensor // (B,1,U)
	dFcOut   *tensor.Tensor // (B,1,U)
	dQuery   *tensor.Tensor // (B,1,QueryWidth)
	dValue   *tensor.Tensor // (B,T,ValueWidth)

	// Row scratch for the mixture backward
	dAlphaRow []float64
	dScaleRow []float64

	sigmoid activations.Sigmoid
	tanh    activations.Tanh
	softmax activations.Softmax
}

// NewMoLAttention creates a MoLAttention layer from cfg. It returns
// ErrConfiguration if Units, MixtureSize or either input width is not
// positive.
func NewMoLAttention(cfg MoLConfig) (*MoLAttention, error) {
	if cfg.Units <= 0 {
		return nil, fmt.Errorf("%w: Units = %d, must be positive", ErrConfiguration, cfg.Units)
	}
	if cfg.MixtureSize <= 0 {
		return nil, fmt.Errorf("%w: MixtureSize = %d, must be positive", ErrConfiguration, cfg.MixtureSize)
	}
	if cfg.QueryWidth <= 0 {
		return nil, fmt.Errorf("%w: QueryWidth = %d, must be positive", ErrConfiguration, cfg.QueryWidth)
	}
	if cfg.ValueWidth <= 0 {
		return nil, fmt.Errorf("%w: ValueWidth = %d, must be positive", ErrConfiguration, cfg.ValueWidth)
	}

	wInit := cfg.WeightInit
	if wInit == DefaultInit {
		wInit = XavierUniform
	}
	bInit := cfg.BiasInit
	if bInit == DefaultInit {
		bInit = Zeros
	}
	src := rand.NewSource(cfg.Seed)

	k := cfg.MixtureSize
	m := &MoLAttention{
		cfg:         cfg,
		units:       cfg.Units,
		mixtureSize: k,
		queryWidth:  cfg.QueryWidth,
		valueWidth:  cfg.ValueWidth,

		fcW:    newWeight("mol.fc.weight", cfg.QueryWidth, cfg.Units, wInit, cfg.QueryWidth, cfg.Units, src, cfg.Decay),
		fcBias: newWeight("mol.fc.bias", 1, cfg.Units, bInit, cfg.QueryWidth, cfg.Units, src, 0),
		projW:  newWeight("mol.proj.weight", cfg.Units, 3*k, wInit, cfg.Units, 3*k, src, cfg.Decay),

		dAlphaRow: make([]float64, k),
		dScaleRow: make([]float64, k),
	}
	return m, nil
}

// Units returns the tanh projection width.
func (m *MoLAttention) Units() int { return m.units }

// MixtureSize returns the number of logistic components.
func (m *MoLAttention) MixtureSize() int { return m.mixtureSize }

// QueryWidth returns the expected query width.
func (m *MoLAttention) QueryWidth() int { return m.queryWidth }

// ValueWidth returns the expected value width.
func (m *MoLAttention) ValueWidth() int { return m.valueWidth }

// Config returns the configuration the layer was built from.
func (m *MoLAttention) Config() MoLConfig { return m.cfg }

// Weights returns the layer parameters in a stable order: fc weight, fc
// bias, projection weight.
func (m *MoLAttention) Weights() []*Weight {
	return []*Weight{m.fcW, m.fcBias, m.projW}
}

// AbsoluteCenter returns the per-component absolute locations from the
// last Forward. The tensor is owned by the layer and overwritten on the
// next step; copy it to carry it as the next step's state.
func (m *MoLAttention) AbsoluteCenter() *tensor.Tensor { return m.center }

// Scores returns the per-timestep attention weights from the last
// Forward. The tensor is owned by the layer.
func (m *MoLAttention) Scores() *tensor.Tensor { return m.scores }

func (m *MoLAttention) checkShapes(query, value, state *tensor.Tensor) error {
	if query.Rows() != 1 || query.Cols() != m.queryWidth {
		return fmt.Errorf("%w: query is (%d,%d,%d), want (B,1,%d)",
			ErrShapeMismatch, query.Batch(), query.Rows(), query.Cols(), m.queryWidth)
	}
	if value.Cols() != m.valueWidth {
		return fmt.Errorf("%w: value is (%d,%d,%d), want (B,T,%d)",
			ErrShapeMismatch, value.Batch(), value.Rows(), value.Cols(), m.valueWidth)
	}
	if state.Rows() != 1 || state.Cols() != m.mixtureSize {
		return fmt.Errorf("%w: state is (%d,%d,%d), want (B,1,%d)",
			ErrShapeMismatch, state.Batch(), state.Rows(), state.Cols(), m.mixtureSize)
	}
	if value.Batch() != query.Batch() || state.Batch() != query.Batch() {
		return fmt.Errorf("%w: batch sizes differ: query %d, value %d, state %d",
			ErrShapeMismatch, query.Batch(), value.Batch(), state.Batch())
	}
	return nil
}

// ensureShape sizes the step scratch for (batch, seqLen), dropping all
// cached contents when the shape changes. Packed-buffer views are
// re-taken so views from before the resize panic on access.
func (m *MoLAttention) ensureShape(batch, seqLen int) {
	if batch == m.batch && seqLen == m.seqLen {
		return
	}
	alloc := func(t *tensor.Tensor, b, r, c int) *tensor.Tensor {
		if t == nil {
			return tensor.New(b, r, c)
		}
		t.Resize(b, r, c)
		return t
	}

	k := m.mixtureSize
	m.fcOut = alloc(m.fcOut, batch, 1, m.units)
	m.fcTanh = alloc(m.fcTanh, batch, 1, m.units)
	m.packed = alloc(m.packed, batch, 1, 3*k)
	m.center = alloc(m.center, batch, 1, k)
	m.safeScale = alloc(m.safeScale, batch, 1, k)
	m.leftArg = alloc(m.leftArg, batch, seqLen, k)
	m.rightArg = alloc(m.rightArg, batch, seqLen, k)
	m.probLeft = alloc(m.probLeft, batch, seqLen, k)
	m.probRight = alloc(m.probRight, batch, seqLen, k)
	m.prob = alloc(m.prob, batch, seqLen, k)
	m.scores = alloc(m.scores, batch, 1, seqLen)
	m.ctx = alloc(m.ctx, batch, 1, m.valueWidth)

	m.dScores = alloc(m.dScores, batch, 1, seqLen)
	m.dPacked = alloc(m.dPacked, batch, 1, 3*k)
	m.dState = alloc(m.dState, batch, 1, k)
	m.dFcTanh = alloc(m.dFcTanh, batch, 1, m.units)
	m.dFcOut = alloc(m.dFcOut, batch, 1, m.units)
	m.dQuery = alloc(m.dQuery, batch, 1, m.queryWidth)
	m.dValue = alloc(m.dValue, batch, seqLen, m.valueWidth)

	m.shiftV = m.packed.ViewCols(0, k)
	m.scaleV = m.packed.ViewCols(k, k)
	m.weightV = m.packed.ViewCols(2*k, k)
	m.dShiftV = m.dPacked.ViewCols(0, k)
	m.dScaleV = m.dPacked.ViewCols(k, k)
	m.dWeightV = m.dPacked.ViewCols(2*k, k)

	m.batch, m.seqLen = batch, seqLen
	m.bwState = backwardPending
}

// Forward runs one attention step and returns the context vector
// (B,1,ValueWidth). The returned tensor is owned by the layer and is
// overwritten on the next step. The inputs are borrowed until the step's
// backward passes complete.
func (m *MoLAttention) Forward(query, value, state *tensor.Tensor) (*tensor.Tensor, error) {
	if err := m.checkShapes(query, value, state); err != nil {
		return nil, err
	}
	m.ensureShape(query.Batch(), value.Rows())
	m.query, m.value, m.state = query, value, state
	m.bwState = backwardPending

	// Project the query into the packed mixture parameters:
	// packed = tanh(query·fcW + fcBias)·projW.
	tensor.MulShared(m.fcOut, query, m.fcW.Value)
	bias := m.fcBias.Value.Row(0, 0)
	for b := 0; b < m.batch; b++ {
		floats.Add(m.fcOut.Row(b, 0), bias)
	}
	for b := 0; b < m.batch; b++ {
		m.tanh.Forward(m.fcTanh.Row(b, 0), m.fcOut.Row(b, 0))
	}
	tensor.MulShared(m.packed, m.fcTanh, m.projW.Value)

	// Transform the packed segments in place: exp for shift and scale,
	// softmax for the component weights.
	for b := 0; b < m.batch; b++ {
		shift := m.shiftV.Row(b, 0)
		for i, v := range shift {
			shift[i] = math.Exp(v)
		}
		scale := m.scaleV.Row(b, 0)
		for i, v := range scale {
			scale[i] = math.Exp(v)
		}
		w := m.weightV.Row(b, 0)
		m.softmax.Forward(w, w)
	}

	// Advance the location and integrate each logistic component over
	// the unit-width bin of every timestep.
	for b := 0; b < m.batch; b++ {
		cRow := m.center.Row(b, 0)
		floats.AddTo(cRow, m.state.Row(b, 0), m.shiftV.Row(b, 0))
		ss := m.safeScale.Row(b, 0)
		copy(ss, m.scaleV.Row(b, 0))
		floats.AddConst(scaleEpsilon, ss)

		weights := m.weightV.Row(b, 0)
		scoreRow := m.scores.Row(b, 0)
		for t := 0; t < m.seqLen; t++ {
			upper := float64(t) + 1.5
			lower := float64(t) + 0.5
			la := m.leftArg.Row(b, t)
			ra := m.rightArg.Row(b, t)
			for i := 0; i < m.mixtureSize; i++ {
				la[i] = (upper - cRow[i]) / ss[i]
				ra[i] = (lower - cRow[i]) / ss[i]
			}
			m.sigmoid.Forward(m.probLeft.Row(b, t), la)
			m.sigmoid.Forward(m.probRight.Row(b, t), ra)
			floats.SubTo(m.prob.Row(b, t), m.probLeft.Row(b, t), m.probRight.Row(b, t))
			scoreRow[t] = floats.Dot(m.prob.Row(b, t), weights)
		}
	}

	tensor.MulBatched(m.ctx, m.scores, m.value)
	return m.ctx, nil
}

func (m *MoLAttention) checkBackward(dCtx *tensor.Tensor) error {
	if m.query == nil {
		panic("MoLAttention: backward called before Forward")
	}
	if dCtx.Batch() != m.batch || dCtx.Rows() != 1 || dCtx.Cols() != m.valueWidth {
		return fmt.Errorf("%w: context gradient is (%d,%d,%d), want (%d,1,%d)",
			ErrShapeMismatch, dCtx.Batch(), dCtx.Rows(), dCtx.Cols(), m.batch, m.valueWidth)
	}
	return nil
}

// ensureSharedBackward runs the scorer and mixture backward chain once
// per step, producing dPacked and dState. Both entry points reuse the
// result, whichever runs first.
func (m *MoLAttention) ensureSharedBackward(dCtx *tensor.Tensor) {
	if m.bwState == backwardComputed {
		return
	}
	tensor.MulBatchedTB(m.dScores, dCtx, m.value)

	k := m.mixtureSize
	for b := 0; b < m.batch; b++ {
		dScores := m.dScores.Row(b, 0)
		alpha := m.weightV.Row(b, 0)
		ss := m.safeScale.Row(b, 0)

		dAlpha := m.dAlphaRow
		dScale := m.dScaleRow
		dCenter := m.dState.Row(b, 0) // the location gradient passes straight to the state
		for i := 0; i < k; i++ {
			dAlpha[i] = 0
			dScale[i] = 0
			dCenter[i] = 0
		}

		for t := 0; t < m.seqLen; t++ {
			ds := dScores[t]
			prob := m.prob.Row(b, t)
			pl := m.probLeft.Row(b, t)
			pr := m.probRight.Row(b, t)
			la := m.leftArg.Row(b, t)
			ra := m.rightArg.Row(b, t)
			for i := 0; i < k; i++ {
				dAlpha[i] += ds * prob[i]
				dp := ds * alpha[i]
				dLeft := pl[i] * (1 - pl[i]) * dp / ss[i]
				dRight := pr[i] * (1 - pr[i]) * -dp / ss[i]
				dCenter[i] -= dLeft + dRight
				dScale[i] -= dLeft*la[i] + dRight*ra[i]
			}
		}

		// Map back onto the packed logits: the shift and scale went
		// through exp, the component weights through softmax. Each
		// segment of dPacked is written exactly once.
		floats.MulTo(m.dShiftV.Row(b, 0), dCenter, m.shiftV.Row(b, 0))
		floats.MulTo(m.dScaleV.Row(b, 0), dScale, m.scaleV.Row(b, 0))
		m.softmax.Backward(m.dWeightV.Row(b, 0), alpha, dAlpha)
	}
	m.bwState = backwardComputed
}

// CalcDerivative computes the step's gradients with respect to its three
// inputs from dCtx, the loss gradient at the context output. Within a
// step, dCtx must carry the same contents here and in CalcGradient. The
// returned tensors are owned by the layer and overwritten on the next
// step.
func (m *MoLAttention) CalcDerivative(dCtx *tensor.Tensor) (dQuery, dValue, dState *tensor.Tensor, err error) {
	if err := m.checkBackward(dCtx); err != nil {
		return nil, nil, nil, err
	}
	tensor.MulBatchedTA(m.dValue, m.scores, dCtx)
	m.ensureSharedBackward(dCtx)

	tensor.MulSharedT(m.dFcTanh, m.dPacked, m.projW.Value)
	for b := 0; b < m.batch; b++ {
		m.tanh.Backward(m.dFcOut.Row(b, 0), m.fcTanh.Row(b, 0), m.dFcTanh.Row(b, 0))
	}
	tensor.MulSharedT(m.dQuery, m.dFcOut, m.fcW.Value)
	return m.dQuery, m.dValue, m.dState, nil
}

// CalcGradient accumulates the step's weight gradients into the Weight
// accumulators from dCtx, the loss gradient at the context output.
// Within a step, dCtx must carry the same contents here and in
// CalcDerivative.
func (m *MoLAttention) CalcGradient(dCtx *tensor.Tensor) error {
	if err := m.checkBackward(dCtx); err != nil {
		return err
	}
	m.ensureSharedBackward(dCtx)

	tensor.AddMulTA(m.projW.Grad, m.fcTanh, m.dPacked)
	tensor.MulSharedT(m.dFcTanh, m.dPacked, m.projW.Value)
	for b := 0; b < m.batch; b++ {
		m.tanh.Backward(m.dFcOut.Row(b, 0), m.fcTanh.Row(b, 0), m.dFcTanh.Row(b, 0))
	}
	tensor.AddMulTA(m.fcW.Grad, m.query, m.dFcOut)
	tensor.AddColSums(m.fcBias.Grad.Row(0, 0), m.dFcOut)
	return nil
}
