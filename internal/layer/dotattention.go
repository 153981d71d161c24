package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/GoAttention/internal/activations"
	"github.com/FlavioCFOliveira/GoAttention/internal/tensor"
)

// DotAttention is plain dot-product attention over a batch of query
// rows: score = softmax(query·valueᵀ) per row, context = score·value.
// With Scaled set, logits are divided by sqrt(width) first. The layer
// has no parameters, so there is no gradient entry point.
type DotAttention struct {
	width  int
	scaled bool

	batch  int
	qRows  int
	seqLen int

	// Borrowed step inputs
	query *tensor.Tensor
	value *tensor.Tensor

	// Step scratch
	scores *tensor.Tensor // (B,L,T) post-softmax
	ctx    *tensor.Tensor // (B,L,W)

	dScores *tensor.Tensor // (B,L,T)
	dLogits *tensor.Tensor // (B,L,T)
	dQuery  *tensor.Tensor // (B,L,W)
	dValue  *tensor.Tensor // (B,T,W)
	dValue2 *tensor.Tensor // (B,T,W) contribution through the logits

	softmax activations.Softmax
}

// NewDotAttention creates a dot-product attention layer over vectors of
// the given width. It returns ErrConfiguration if width is not positive.
func NewDotAttention(width int, scaled bool) (*DotAttention, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width = %d, must be positive", ErrConfiguration, width)
	}
	return &DotAttention{width: width, scaled: scaled}, nil
}

// Width returns the query and value width.
func (d *DotAttention) Width() int { return d.width }

// Scores returns the attention weights from the last Forward. The tensor
// is owned by the layer.
func (d *DotAttention) Scores() *tensor.Tensor { return d.scores }

func (d *DotAttention) ensureShape(batch, qRows, seqLen int) {
	if batch == d.batch && qRows == d.qRows && seqLen == d.seqLen {
		return
	}
	alloc := func(t *tensor.Tensor, b, r, c int) *tensor.Tensor {
		if t == nil {
			return tensor.New(b, r, c)
		}
		t.Resize(b, r, c)
		return t
	}

	d.scores = alloc(d.scores, batch, qRows, seqLen)
	d.ctx = alloc(d.ctx, batch, qRows, d.width)
	d.dScores = alloc(d.dScores, batch, qRows, seqLen)
	d.dLogits = alloc(d.dLogits, batch, qRows, seqLen)
	d.dQuery = alloc(d.dQuery, batch, qRows, d.width)
	d.dValue = alloc(d.dValue, batch, seqLen, d.width)
	d.dValue2 = alloc(d.dValue2, batch, seqLen, d.width)

	d.batch, d.qRows, d.seqLen = batch, qRows, seqLen
}

// Forward runs one attention step and returns the context (B,L,width).
// The returned tensor is owned by the layer and overwritten on the next
// step.
func (d *DotAttention) Forward(query, value *tensor.Tensor) (*tensor.Tensor, error) {
	if query.Cols() != d.width || value.Cols() != d.width {
		return nil, fmt.Errorf("%w: query width %d, value width %d, want %d",
			ErrShapeMismatch, query.Cols(), value.Cols(), d.width)
	}
	if query.Batch() != value.Batch() {
		return nil, fmt.Errorf("%w: batch sizes differ: query %d, value %d",
			ErrShapeMismatch, query.Batch(), value.Batch())
	}
	d.ensureShape(query.Batch(), query.Rows(), value.Rows())
	d.query, d.value = query, value

	tensor.MulBatchedTB(d.scores, query, value)
	if d.scaled {
		floats.Scale(1/math.Sqrt(float64(d.width)), d.scores.Data())
	}
	for b := 0; b < d.batch; b++ {
		for r := 0; r < d.qRows; r++ {
			row := d.scores.Row(b, r)
			d.softmax.Forward(row, row)
		}
	}
	tensor.MulBatched(d.ctx, d.scores, d.value)
	return d.ctx, nil
}

// Backward computes the gradients with respect to query and value from
// dCtx, the loss gradient at the context output. The returned tensors
// are owned by the layer and overwritten on the next step.
func (d *DotAttention) Backward(dCtx *tensor.Tensor) (dQuery, dValue *tensor.Tensor, err error) {
	if d.query == nil {
		panic("DotAttention: Backward called before Forward")
	}
	if dCtx.Batch() != d.batch || dCtx.Rows() != d.qRows || dCtx.Cols() != d.width {
		return nil, nil, fmt.Errorf("%w: context gradient is (%d,%d,%d), want (%d,%d,%d)",
			ErrShapeMismatch, dCtx.Batch(), dCtx.Rows(), dCtx.Cols(), d.batch, d.qRows, d.width)
	}

	// Through the weighted sum: dScores = dCtx·valueᵀ, dValue = scoresᵀ·dCtx.
	tensor.MulBatchedTB(d.dScores, dCtx, d.value)
	tensor.MulBatchedTA(d.dValue, d.scores, dCtx)

	// Through the softmax and the (optionally scaled) logits.
	for b := 0; b < d.batch; b++ {
		for r := 0; r < d.qRows; r++ {
			d.softmax.Backward(d.dLogits.Row(b, r), d.scores.Row(b, r), d.dScores.Row(b, r))
		}
	}
	if d.scaled {
		floats.Scale(1/math.Sqrt(float64(d.width)), d.dLogits.Data())
	}

	tensor.MulBatched(d.dQuery, d.dLogits, d.value)
	tensor.MulBatchedTA(d.dValue2, d.dLogits, d.query)
	floats.Add(d.dValue.Data(), d.dValue2.Data())
	return d.dQuery, d.dValue, nil
}
