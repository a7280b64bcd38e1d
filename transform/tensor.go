package transform

import "gonum.org/v1/gonum/mat"

// Tensor is a row-major second order tensor.
type Tensor [9]float64

func (a Tensor) dense() *mat.Dense {
	d := a
	return mat.NewDense(3, 3, d[:])
}

func tensorFrom(m mat.Matrix) (a Tensor) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a[3*i+j] = m.At(i, j)
		}
	}
	return
}
