// Package tensor provides batched dense tensors for attention arithmetic.
package tensor

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// batchParallelThreshold is the batch size at which batched products fan
// out across goroutines.
const batchParallelThreshold = 8

// Tensor is a dense (batch, rows, cols) tensor backed by a single
// contiguous float64 slice in batch-major, row-major order.
type Tensor struct {
	batch int
	rows  int
	cols  int
	data  []float64
	gen   uint64
}

// New creates a zeroed tensor with the given shape.
func New(batch, rows, cols int) *Tensor {
	if batch <= 0 || rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("tensor: invalid shape (%d,%d,%d)", batch, rows, cols))
	}
	return &Tensor{
		batch: batch,
		rows:  rows,
		cols:  cols,
		data:  make([]float64, batch*rows*cols),
	}
}

// FromSlice wraps data as a (batch, rows, cols) tensor without copying.
func FromSlice(batch, rows, cols int, data []float64) *Tensor {
	if len(data) != batch*rows*cols {
		panic(fmt.Sprintf("tensor: data length %d does not match shape (%d,%d,%d)", len(data), batch, rows, cols))
	}
	return &Tensor{batch: batch, rows: rows, cols: cols, data: data}
}

// Batch returns the batch dimension.
func (t *Tensor) Batch() int { return t.batch }

// Rows returns the row dimension.
func (t *Tensor) Rows() int { return t.rows }

// Cols returns the column dimension.
func (t *Tensor) Cols() int { return t.cols }

// Data returns the backing slice. Mutating it mutates the tensor.
func (t *Tensor) Data() []float64 { return t.data }

// At returns the element at (b, r, c).
func (t *Tensor) At(b, r, c int) float64 {
	return t.data[(b*t.rows+r)*t.cols+c]
}

// Set stores v at (b, r, c).
func (t *Tensor) Set(b, r, c int, v float64) {
	t.data[(b*t.rows+r)*t.cols+c] = v
}

// Row returns row r of batch entry b as a sub-slice of the backing
// storage.
func (t *Tensor) Row(b, r int) []float64 {
	off := (b*t.rows + r) * t.cols
	return t.data[off : off+t.cols]
}

// batchSlice returns the backing storage of batch entry b.
func (t *Tensor) batchSlice(b int) []float64 {
	n := t.rows * t.cols
	return t.data[b*n : (b+1)*n]
}

// Zero resets every element to zero.
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	c := New(t.batch, t.rows, t.cols)
	copy(c.data, t.data)
	return c
}

// CopyFrom copies the elements of src into t. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) {
	if t.batch != src.batch || t.rows != src.rows || t.cols != src.cols {
		panic(fmt.Sprintf("tensor: CopyFrom shape mismatch: (%d,%d,%d) from (%d,%d,%d)",
			t.batch, t.rows, t.cols, src.batch, src.rows, src.cols))
	}
	copy(t.data, src.data)
}

// Resize reshapes t in place, zeroing all elements. Views taken before a
// resize are invalidated and panic on access.
func (t *Tensor) Resize(batch, rows, cols int) {
	if batch <= 0 || rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("tensor: invalid shape (%d,%d,%d)", batch, rows, cols))
	}
	n := batch * rows * cols
	if cap(t.data) >= n {
		t.data = t.data[:n]
		for i := range t.data {
			t.data[i] = 0
		}
	} else {
		t.data = make([]float64, n)
	}
	t.batch, t.rows, t.cols = batch, rows, cols
	t.gen++
}

// View is a fixed-width column window over a tensor, pinned to the
// storage generation it was taken from.
type View struct {
	t     *Tensor
	off   int
	width int
	gen   uint64
}

// ViewCols returns a view of width columns starting at column off.
func (t *Tensor) ViewCols(off, width int) View {
	if off < 0 || width <= 0 || off+width > t.cols {
		panic(fmt.Sprintf("tensor: view [%d:%d) out of range for %d cols", off, off+width, t.cols))
	}
	return View{t: t, off: off, width: width, gen: t.gen}
}

// Width returns the view's column width.
func (v View) Width() int { return v.width }

// Row returns the viewed window of row r in batch entry b. It panics if
// the underlying tensor was resized after the view was taken.
func (v View) Row(b, r int) []float64 {
	if v.gen != v.t.gen {
		panic("tensor: view used after resize")
	}
	row := v.t.Row(b, r)
	return row[v.off : v.off+v.width]
}

// forEachBatch runs fn for every batch index, in parallel above the
// threshold.
func forEachBatch(batch int, fn func(b int)) {
	if batch < batchParallelThreshold {
		for i := 0; i < batch; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(batch)
	for i := 0; i < batch; i++ {
		go func(i int) {
			defer wg.Done()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// MulShared computes dst = a·w for a weight matrix shared across the
// batch: a is (B,R,C), w is (1,C,N), dst is (B,R,N). The product runs as
// a single (B·R,C) × (C,N) multiply.
func MulShared(dst, a, w *Tensor) {
	if w.batch != 1 || a.cols != w.rows || dst.batch != a.batch || dst.rows != a.rows || dst.cols != w.cols {
		panic(fmt.Sprintf("tensor: MulShared shape mismatch: (%d,%d,%d)·(%d,%d,%d) into (%d,%d,%d)",
			a.batch, a.rows, a.cols, w.batch, w.rows, w.cols, dst.batch, dst.rows, dst.cols))
	}
	am := mat.NewDense(a.batch*a.rows, a.cols, a.data)
	wm := mat.NewDense(w.rows, w.cols, w.data)
	dm := mat.NewDense(dst.batch*dst.rows, dst.cols, dst.data)
	dm.Mul(am, wm)
}

// MulSharedT computes dst = a·wᵀ for a weight matrix shared across the
// batch: a is (B,R,N), w is (1,C,N), dst is (B,R,C).
func MulSharedT(dst, a, w *Tensor) {
	if w.batch != 1 || a.cols != w.cols || dst.batch != a.batch || dst.rows != a.rows || dst.cols != w.rows {
		panic(fmt.Sprintf("tensor: MulSharedT shape mismatch: (%d,%d,%d)·(%d,%d,%d)ᵀ into (%d,%d,%d)",
			a.batch, a.rows, a.cols, w.batch, w.rows, w.cols, dst.batch, dst.rows, dst.cols))
	}
	am := mat.NewDense(a.batch*a.rows, a.cols, a.data)
	wm := mat.NewDense(w.rows, w.cols, w.data)
	dm := mat.NewDense(dst.batch*dst.rows, dst.cols, dst.data)
	dm.Mul(am, wm.T())
}

// AddMulTA accumulates dst += aᵀ·b with a and b flattened over batch and
// rows: a is (B,R,Ca), b is (B,R,Cb), dst is (1,Ca,Cb). This is the
// weight-gradient product.
func AddMulTA(dst, a, b *Tensor) {
	if dst.batch != 1 || a.batch != b.batch || a.rows != b.rows || dst.rows != a.cols || dst.cols != b.cols {
		panic(fmt.Sprintf("tensor: AddMulTA shape mismatch: (%d,%d,%d)ᵀ·(%d,%d,%d) into (%d,%d,%d)",
			a.batch, a.rows, a.cols, b.batch, b.rows, b.cols, dst.batch, dst.rows, dst.cols))
	}
	rows := a.batch * a.rows
	for r := 0; r < rows; r++ {
		arow := a.data[r*a.cols : (r+1)*a.cols]
		brow := b.data[r*b.cols : (r+1)*b.cols]
		for i, av := range arow {
			floats.AddScaled(dst.data[i*dst.cols:(i+1)*dst.cols], av, brow)
		}
	}
}

// AddColSums accumulates per-column sums of a into dst: dst[c] += sum
// over batch and rows of a(b,r,c). This is the bias-gradient reduction.
func AddColSums(dst []float64, a *Tensor) {
	if len(dst) != a.cols {
		panic(fmt.Sprintf("tensor: AddColSums length mismatch: %d, want %d", len(dst), a.cols))
	}
	rows := a.batch * a.rows
	for r := 0; r < rows; r++ {
		floats.Add(dst, a.data[r*a.cols:(r+1)*a.cols])
	}
}

// MulBatched computes dst[b] = a[b]·c[b] for every batch entry: a is
// (B,R,C), c is (B,C,N), dst is (B,R,N).
func MulBatched(dst, a, c *Tensor) {
	if a.batch != c.batch || dst.batch != a.batch || a.cols != c.rows || dst.rows != a.rows || dst.cols != c.cols {
		panic(fmt.Sprintf("tensor: MulBatched shape mismatch: (%d,%d,%d)·(%d,%d,%d) into (%d,%d,%d)",
			a.batch, a.rows, a.cols, c.batch, c.rows, c.cols, dst.batch, dst.rows, dst.cols))
	}
	forEachBatch(a.batch, func(b int) {
		am := mat.NewDense(a.rows, a.cols, a.batchSlice(b))
		cm := mat.NewDense(c.rows, c.cols, c.batchSlice(b))
		dm := mat.NewDense(dst.rows, dst.cols, dst.batchSlice(b))
		dm.Mul(am, cm)
	})
}

// MulBatchedTA computes dst[b] = a[b]ᵀ·c[b] for every batch entry: a is
// (B,R,C), c is (B,R,N), dst is (B,C,N).
func MulBatchedTA(dst, a, c *Tensor) {
	if a.batch != c.batch || dst.batch != a.batch || a.rows != c.rows || dst.rows != a.cols || dst.cols != c.cols {
		panic(fmt.Sprintf("tensor: MulBatchedTA shape mismatch: (%d,%d,%d)ᵀ·(%d,%d,%d) into (%d,%d,%d)",
			a.batch, a.rows, a.cols, c.batch, c.rows, c.cols, dst.batch, dst.rows, dst.cols))
	}
	forEachBatch(a.batch, func(b int) {
		am := mat.NewDense(a.rows, a.cols, a.batchSlice(b))
		cm := mat.NewDense(c.rows, c.cols, c.batchSlice(b))
		dm := mat.NewDense(dst.rows, dst.cols, dst.batchSlice(b))
		dm.Mul(am.T(), cm)
	})
}

// MulBatchedTB computes dst[b] = a[b]·c[b]ᵀ for every batch entry: a is
// (B,R,C), c is (B,N,C), dst is (B,R,N).
func MulBatchedTB(dst, a, c *Tensor) {
	if a.batch != c.batch || dst.batch != a.batch || a.cols != c.cols || dst.rows != a.rows || dst.cols != c.rows {
		panic(fmt.Sprintf("tensor: MulBatchedTB shape mismatch: (%d,%d,%d)·(%d,%d,%d)ᵀ into (%d,%d,%d)",
			a.batch, a.rows, a.cols, c.batch, c.rows, c.cols, dst.batch, dst.rows, dst.cols))
	}
	forEachBatch(a.batch, func(b int) {
		am := mat.NewDense(a.rows, a.cols, a.batchSlice(b))
		cm := mat.NewDense(c.rows, c.cols, c.batchSlice(b))
		dm := mat.NewDense(dst.rows, dst.cols, dst.batchSlice(b))
		dm.Mul(am, cm.T())
	})
}
