package net

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/GoAttention/internal/layer"
)

// molSnapshot is the gob image of a MoLAttention layer: the dimensions
// needed to rebuild it plus the flattened parameter buffers.
type molSnapshot struct {
	Units       int
	MixtureSize int
	QueryWidth  int
	ValueWidth  int
	Decay       float64

	FcWeight []float64
	FcBias   []float64
	Proj     []float64
}

// SaveMoL saves the layer to a file using gob encoding.
// Optimizer state is not saved.
func SaveMoL(filename string, l *layer.MoLAttention) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return EncodeMoL(file, l)
}

// LoadMoL loads a layer from a file written by SaveMoL.
func LoadMoL(filename string) (*layer.MoLAttention, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return DecodeMoL(file)
}

// EncodeMoL writes the layer to an io.Writer using gob encoding.
func EncodeMoL(w io.Writer, l *layer.MoLAttention) error {
	cfg := l.Config()
	weights := l.Weights() // fc weight, fc bias, projection
	snap := molSnapshot{
		Units:       cfg.Units,
		MixtureSize: cfg.MixtureSize,
		QueryWidth:  cfg.QueryWidth,
		ValueWidth:  cfg.ValueWidth,
		Decay:       cfg.Decay,
		FcWeight:    append([]float64(nil), weights[0].Value.Data()...),
		FcBias:      append([]float64(nil), weights[1].Value.Data()...),
		Proj:        append([]float64(nil), weights[2].Value.Data()...),
	}

	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode layer: %w", err)
	}
	return nil
}

// DecodeMoL reads a layer from an io.Reader written by EncodeMoL.
func DecodeMoL(r io.Reader) (*layer.MoLAttention, error) {
	var snap molSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode layer: %w", err)
	}

	l, err := layer.NewMoLAttention(layer.MoLConfig{
		Units:       snap.Units,
		MixtureSize: snap.MixtureSize,
		QueryWidth:  snap.QueryWidth,
		ValueWidth:  snap.ValueWidth,
		Decay:       snap.Decay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create layer: %w", err)
	}

	weights := l.Weights()
	for i, vals := range [][]float64{snap.FcWeight, snap.FcBias, snap.Proj} {
		dst := weights[i].Value.Data()
		if len(vals) != len(dst) {
			return nil, fmt.Errorf("snapshot %s has %d values, want %d",
				weights[i].Name, len(vals), len(dst))
		}
		copy(dst, vals)
	}
	return l, nil
}
