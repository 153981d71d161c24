package net

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/x448/float16"

	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
)

// GGUF constants
const (
	GGUFMagic     = 0x46554747 // "GGUF" in little-endian
	GGUFVersion   = 3
	ggufAlignment = 32
)

// GGUF value types
type GGUFType uint32

const (
	GGUFTypeUint8   GGUFType = 0
	GGUFTypeInt8    GGUFType = 1
	GGUFTypeUint16  GGUFType = 2
	GGUFTypeInt16   GGUFType = 3
	GGUFTypeUint32  GGUFType = 4
	GGUFTypeInt32   GGUFType = 5
	GGUFTypeFloat32 GGUFType = 6
	GGUFTypeBool    GGUFType = 7
	GGUFTypeString  GGUFType = 8
	GGUFTypeUint64  GGUFType = 10
	GGUFTypeInt64   GGUFType = 11
	GGUFTypeFloat64 GGUFType = 12
)

// GGML tensor types
type GGMLType uint32

const (
	GGMLTypeF32 GGMLType = 0
	GGMLTypeF16 GGMLType = 1
)

func ggmlTypeSize(t GGMLType) (uint64, error) {
	switch t {
	case GGMLTypeF32:
		return 4, nil
	case GGMLTypeF16:
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported tensor type: %d", t)
}

// countingWriter tracks how many bytes have been written so tensor data
// can be padded onto alignment boundaries.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func (cw *countingWriter) pad(alignment uint64) error {
	rem := cw.n % alignment
	if rem == 0 {
		return nil
	}
	_, err := cw.Write(make([]byte, alignment-rem))
	return err
}

// GGUFWriter helps writing GGUF files.
type GGUFWriter struct {
	w io.Writer
}

func NewGGUFWriter(w io.Writer) *GGUFWriter {
	return &GGUFWriter{w: w}
}

func (gw *GGUFWriter) WriteHeader(tensorCount, kvCount uint64) error {
	if err := binary.Write(gw.w, binary.LittleEndian, uint32(GGUFMagic)); err != nil {
		return err
	}
	if err := binary.Write(gw.w, binary.LittleEndian, uint32(GGUFVersion)); err != nil {
		return err
	}
	if err := binary.Write(gw.w, binary.LittleEndian, tensorCount); err != nil {
		return err
	}
	return binary.Write(gw.w, binary.LittleEndian, kvCount)
}

func (gw *GGUFWriter) WriteString(s string) error {
	if err := binary.Write(gw.w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := gw.w.Write([]byte(s))
	return err
}

func (gw *GGUFWriter) WriteKV(key string, valType GGUFType, value interface{}) error {
	if err := gw.WriteString(key); err != nil {
		return err
	}
	if err := binary.Write(gw.w, binary.LittleEndian, uint32(valType)); err != nil {
		return err
	}

	switch valType {
	case GGUFTypeUint8:
		return binary.Write(gw.w, binary.LittleEndian, value.(uint8))
	case GGUFTypeInt8:
		return binary.Write(gw.w, binary.LittleEndian, value.(int8))
	case GGUFTypeUint16:
		return binary.Write(gw.w, binary.LittleEndian, value.(uint16))
	case GGUFTypeInt16:
		return binary.Write(gw.w, binary.LittleEndian, value.(int16))
	case GGUFTypeUint32:
		return binary.Write(gw.w, binary.LittleEndian, value.(uint32))
	case GGUFTypeInt32:
		return binary.Write(gw.w, binary.LittleEndian, value.(int32))
	case GGUFTypeFloat32:
		return binary.Write(gw.w, binary.LittleEndian, value.(float32))
	case GGUFTypeUint64:
		return binary.Write(gw.w, binary.LittleEndian, value.(uint64))
	case GGUFTypeInt64:
		return binary.Write(gw.w, binary.LittleEndian, value.(int64))
	case GGUFTypeFloat64:
		return binary.Write(gw.w, binary.LittleEndian, value.(float64))
	case GGUFTypeBool:
		var b uint8
		if value.(bool) {
			b = 1
		}
		return binary.Write(gw.w, binary.LittleEndian, b)
	case GGUFTypeString:
		return gw.WriteString(value.(string))
	default:
		return fmt.Errorf("unsupported GGUF type: %d", valType)
	}
}

func (gw *GGUFWriter) WriteTensorInfo(name string, shape []uint64, ggmlType GGMLType, offset uint64) error {
	if err := gw.WriteString(name); err != nil {
		return err
	}
	rank := uint32(len(shape))
	if err := binary.Write(gw.w, binary.LittleEndian, rank); err != nil {
		return err
	}
	// GGUF dimensions are in reverse order (last dimension first)
	for i := int(rank) - 1; i >= 0; i-- {
		if err := binary.Write(gw.w, binary.LittleEndian, shape[i]); err != nil {
			return err
		}
	}
	if err := binary.Write(gw.w, binary.LittleEndian, uint32(ggmlType)); err != nil {
		return err
	}
	return binary.Write(gw.w, binary.LittleEndian, offset)
}

// weightShape maps a (1, rows, cols) parameter to its GGUF shape. Row
// vectors export as one-dimensional tensors.
func weightShape(w *layer.Weight) []uint64 {
	if w.Value.Rows() == 1 {
		return []uint64{uint64(w.Value.Cols())}
	}
	return []uint64{uint64(w.Value.Rows()), uint64(w.Value.Cols())}
}

func writeTensorData(w io.Writer, data []float64, dtype GGMLType) error {
	switch dtype {
	case GGMLTypeF32:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		return binary.Write(w, binary.LittleEndian, buf)
	case GGMLTypeF16:
		buf := make([]uint16, len(data))
		for i, v := range data {
			buf[i] = float16.Fromfloat32(float32(v)).Bits()
		}
		return binary.Write(w, binary.LittleEndian, buf)
	}
	return fmt.Errorf("unsupported tensor type: %d", dtype)
}

// WriteGGUF writes the weights to w as a GGUF model. Tensor data offsets
// are relative to the start of the data section and aligned to 32 bytes.
func WriteGGUF(w io.Writer, arch string, weights []*layer.Weight, dtype GGMLType) error {
	size, err := ggmlTypeSize(dtype)
	if err != nil {
		return err
	}

	cw := &countingWriter{w: w}
	gw := NewGGUFWriter(cw)

	if err := gw.WriteHeader(uint64(len(weights)), 2); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := gw.WriteKV("general.architecture", GGUFTypeString, arch); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := gw.WriteKV("general.alignment", GGUFTypeUint32, uint32(ggufAlignment)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	var offset uint64
	for _, wt := range weights {
		if err := gw.WriteTensorInfo(wt.Name, weightShape(wt), dtype, offset); err != nil {
			return fmt.Errorf("failed to write tensor info for %s: %w", wt.Name, err)
		}
		offset += uint64(len(wt.Value.Data())) * size
		if rem := offset % ggufAlignment; rem != 0 {
			offset += ggufAlignment - rem
		}
	}

	// Tensor data begins at the next alignment boundary.
	if err := cw.pad(ggufAlignment); err != nil {
		return fmt.Errorf("failed to pad data section: %w", err)
	}

	for _, wt := range weights {
		if err := writeTensorData(cw, wt.Value.Data(), dtype); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", wt.Name, err)
		}
		if err := cw.pad(ggufAlignment); err != nil {
			return fmt.Errorf("failed to pad tensor %s: %w", wt.Name, err)
		}
	}
	return nil
}

// ExportGGUF writes the weights to a GGUF file.
func ExportGGUF(filename, arch string, weights []*layer.Weight, dtype GGMLType) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return WriteGGUF(file, arch, weights, dtype)
}
