package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-hls/internal/graph"
)

func pool1D(t *testing.T, format graph.DataFormat) *graph.Node {
	t.Helper()
	n, err := graph.NewNode(graph.NodeSpec{
		Name:    "pool1",
		Index:   2,
		Variant: graph.Pooling1D,
		Input:   graph.Port{Var: "layer1_out", Type: "input_t"},
		Output:  graph.Port{Var: "layer2_out", Type: "layer2_t"},
		Attrs: graph.Pooling1DAttrs{
			StrideWidth: 2, PoolWidth: 2, NIn: 8, NOut: 4, NFilt: 3,
			PoolOp: graph.PoolMax, DataFormat: format,
		},
	})
	require.NoError(t, err)
	return n
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"vivado", "Vivado", "QUARTUS"} {
		b, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, b.Registry())
		assert.NotEmpty(t, b.Passes())
	}

	_, err := Lookup("vitis")
	require.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, err.Error(), "quartus")
	assert.Equal(t, []string{"quartus", "vivado"}, Names())
}

func TestSet(t *testing.T) {
	set, err := NewSet()
	require.NoError(t, err)

	a, err := set.Lookup("Vivado")
	require.NoError(t, err)
	b, err := set.Lookup("vivado")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, a.SupportsChannelsFirst)

	q, err := set.Lookup("QUARTUS")
	require.NoError(t, err)
	assert.Equal(t, "quartus", q.Name)

	_, err = set.Lookup("vitis")
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestValidate(t *testing.T) {
	t.Run("QuartusRejectsChannelsFirst", func(t *testing.T) {
		b := Quartus()
		n := pool1D(t, graph.ChannelsFirst)

		tag, err := b.Validate(n)
		require.ErrorIs(t, err, ErrNotSupported)
		assert.Empty(t, tag)
		assert.Contains(t, err.Error(), "Quartus")
		assert.Contains(t, err.Error(), "data_format")
	})

	t.Run("QuartusChannelsLast", func(t *testing.T) {
		tag, err := Quartus().Validate(pool1D(t, graph.ChannelsLast))
		require.NoError(t, err)
		assert.Equal(t, TagChannelsLast, tag)
	})

	t.Run("VivadoChannelsFirst", func(t *testing.T) {
		tag, err := Vivado().Validate(pool1D(t, graph.ChannelsFirst))
		require.NoError(t, err)
		assert.Equal(t, TagChannelsFirst, tag)
	})

	t.Run("NoDataFormat", func(t *testing.T) {
		n, err := graph.NewNode(graph.NodeSpec{
			Name:    "lstm",
			Variant: graph.LSTM,
			Attrs:   graph.RecurrentAttrs{NIn: 2, NOut: 2, NSequence: 3},
			Weights: []*graph.WeightTensor{
				mustTensor(t, "weight", 2, 8), mustTensor(t, "bias", 8),
				mustTensor(t, "recurrent_weight", 2, 8), mustTensor(t, "recurrent_bias", 8),
			},
		})
		require.NoError(t, err)
		tag, err := Quartus().Validate(n)
		require.NoError(t, err)
		assert.Equal(t, TagChannelsLast, tag)
	})
}

func TestIncludes(t *testing.T) {
	b := Quartus()
	for _, v := range graph.Variants() {
		assert.NotEmpty(t, b.Includes(v), v.String())
	}
	assert.Equal(t, []string{"nnet_utils/nnet_pooling.h"}, b.Includes(graph.GlobalPooling2D))

	// callers may modify the returned slice
	inc := b.Includes(graph.Dense)
	inc[0] = "changed"
	assert.Equal(t, "nnet_utils/nnet_dense.h", b.Includes(graph.Dense)[0])
}

func mustTensor(t *testing.T, name string, shape ...int) *graph.WeightTensor {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	w, err := graph.NewWeightTensor(name, shape, make([]float32, n))
	require.NoError(t, err)
	return w
}
