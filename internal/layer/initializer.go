package layer

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer selects a weight initialization scheme.
type Initializer int

const (
	// DefaultInit lets the layer pick its own scheme.
	DefaultInit Initializer = iota
	Zeros
	Ones
	XavierUniform
	XavierNormal
	HeUniform
	HeNormal
	LecunUniform
	LecunNormal
)

// Fill initializes dst in place. fanIn and fanOut size the distribution;
// src may be nil to draw from the global source.
func (init Initializer) Fill(dst []float64, fanIn, fanOut int, src rand.Source) {
	switch init {
	case Zeros:
		for i := range dst {
			dst[i] = 0
		}
	case Ones:
		for i := range dst {
			dst[i] = 1
		}
	case XavierUniform:
		fillUniform(dst, math.Sqrt(6.0/float64(fanIn+fanOut)), src)
	case XavierNormal:
		fillNormal(dst, math.Sqrt(2.0/float64(fanIn+fanOut)), src)
	case HeUniform:
		fillUniform(dst, math.Sqrt(6.0/float64(fanIn)), src)
	case HeNormal:
		fillNormal(dst, math.Sqrt(2.0/float64(fanIn)), src)
	case LecunUniform:
		fillUniform(dst, math.Sqrt(3.0/float64(fanIn)), src)
	case LecunNormal:
		fillNormal(dst, math.Sqrt(1.0/float64(fanIn)), src)
	default:
		panic(fmt.Sprintf("layer: unresolved initializer %d", init))
	}
}

func fillUniform(dst []float64, limit float64, src rand.Source) {
	u := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	for i := range dst {
		dst[i] = u.Rand()
	}
}

func fillNormal(dst []float64, sigma float64, src rand.Source) {
	n := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for i := range dst {
		dst[i] = n.Rand()
	}
}
