package graph

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"gonum.org/v1/gonum/mat"
)

// WeightTensor is a dense row-major float32 array owned by exactly one Node.
// Rewrites replace the backing data but keep the tensor's identity.
type WeightTensor struct {
	Name  string
	shape []int
	data  []float32
}

// NewWeightTensor creates a tensor over a copy of data. It fails when the
// element count does not match shape. The count is bounded by len(data) as
// it is accumulated, so oversized shapes cannot wrap.
func NewWeightTensor(name string, shape []int, data []float32) (*WeightTensor, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("weight %q: non-positive dimension in shape %v", name, shape)
		}
		if d > len(data)/n {
			return nil, fmt.Errorf("weight %q: shape %v exceeds the %d values given", name, shape, len(data))
		}
		n *= d
	}
	if len(shape) == 0 || n != len(data) {
		return nil, fmt.Errorf("weight %q: shape %v needs %d values, got %d", name, shape, n, len(data))
	}
	return &WeightTensor{
		Name:  name,
		shape: slices.Clone(shape),
		data:  slices.Clone(data),
	}, nil
}

// Shape returns a copy of the tensor's axis sizes.
func (w *WeightTensor) Shape() []int {
	return slices.Clone(w.shape)
}

// Data returns the backing slice. Callers must not modify it.
func (w *WeightTensor) Data() []float32 {
	return w.data
}

// Layout is a permuted copy of a tensor's contents, not yet committed.
type Layout struct {
	Shape []int
	Data  []float32
}

// Transpose swaps the two axes of a 2-d tensor without modifying it.
func (w *WeightTensor) Transpose() (Layout, error) {
	if len(w.shape) != 2 {
		return Layout{}, fmt.Errorf("weight %q: transpose needs 2 axes, has %d", w.Name, len(w.shape))
	}
	rows, cols := w.shape[0], w.shape[1]

	src := make([]float64, len(w.data))
	for i, v := range w.data {
		src[i] = float64(v)
	}

	var t mat.Dense
	t.CloneFrom(mat.NewDense(rows, cols, src).T())

	raw := t.RawMatrix()
	out := make([]float32, 0, len(w.data))
	for i := 0; i < raw.Rows; i++ {
		for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			out = append(out, float32(v))
		}
	}
	return Layout{Shape: []int{cols, rows}, Data: out}, nil
}

// Permute reorders the axes of the tensor: axis i of the result is axis
// axes[i] of the source. The tensor itself is not modified.
func (w *WeightTensor) Permute(axes ...int) (Layout, error) {
	if len(axes) != len(w.shape) {
		return Layout{}, fmt.Errorf("weight %q: permutation %v does not match rank %d", w.Name, axes, len(w.shape))
	}
	seen := make([]bool, len(axes))
	for _, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return Layout{}, fmt.Errorf("weight %q: invalid permutation %v", w.Name, axes)
		}
		seen[a] = true
	}

	shape := make([]int, len(axes))
	for i, a := range axes {
		shape[i] = w.shape[a]
	}

	t := tensor.New(tensor.WithShape(w.Shape()...), tensor.WithBacking(slices.Clone(w.data)))
	if err := t.T(axes...); err != nil {
		return Layout{}, fmt.Errorf("weight %q: %w", w.Name, err)
	}
	if err := t.Transpose(); err != nil {
		return Layout{}, fmt.Errorf("weight %q: %w", w.Name, err)
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return Layout{}, fmt.Errorf("weight %q: unexpected backing type %T", w.Name, t.Data())
	}
	return Layout{Shape: shape, Data: slices.Clone(data)}, nil
}

// Replace commits a layout produced by Transpose or Permute.
func (w *WeightTensor) Replace(l Layout) {
	w.shape = l.Shape
	w.data = l.Data
}
