package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-hls/internal/backend"
	"github.com/23skdu/longbow-hls/internal/graph"
)

func tensor(t *testing.T, name string, shape ...int) *graph.WeightTensor {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	w, err := graph.NewWeightTensor(name, shape, data)
	require.NoError(t, err)
	return w
}

func mustNode(t *testing.T, spec graph.NodeSpec) *graph.Node {
	t.Helper()
	n, err := graph.NewNode(spec)
	require.NoError(t, err)
	return n
}

func model(t *testing.T, poolFormat graph.DataFormat) *graph.Graph {
	t.Helper()
	conv := mustNode(t, graph.NodeSpec{
		Name:     "conv1d",
		Index:    2,
		Variant:  graph.Conv1D,
		Strategy: "Resource",
		Input:    graph.Port{Var: "input_1", Type: "input_t"},
		Output:   graph.Port{Var: "layer2_out", Type: "layer2_t"},
		Attrs:    graph.Conv1DAttrs{InWidth: 8, NChan: 2, FiltWidth: 3, NFilt: 4, StrideWidth: 1, OutWidth: 6},
		Weights:  []*graph.WeightTensor{tensor(t, "weight", 3, 2, 4), tensor(t, "bias", 4)},
	})
	pool := mustNode(t, graph.NodeSpec{
		Name:    "pool1d",
		Index:   3,
		Variant: graph.Pooling1D,
		Input:   graph.Port{Var: "layer2_out", Type: "layer2_t"},
		Output:  graph.Port{Var: "layer3_out", Type: "layer3_t"},
		Attrs: graph.Pooling1DAttrs{
			StrideWidth: 2, PoolWidth: 2, NIn: 6, NOut: 3, NFilt: 4,
			PoolOp: graph.PoolMax, DataFormat: poolFormat,
		},
	})
	global := mustNode(t, graph.NodeSpec{
		Name:    "global_pool",
		Index:   4,
		Variant: graph.GlobalPooling1D,
		Input:   graph.Port{Var: "layer3_out", Type: "layer3_t"},
		Output:  graph.Port{Var: "layer4_out", Type: "result_t"},
		Attrs:   graph.GlobalPooling1DAttrs{NIn: 3, NFilt: 4, PoolOp: graph.PoolAverage},
	})
	g, err := graph.New("model", conv, pool, global)
	require.NoError(t, err)
	return g
}

func TestCompile(t *testing.T) {
	g := model(t, graph.ChannelsLast)
	before := testutil.ToFloat64(nodesRendered.WithLabelValues("quartus", "Pooling1D"))

	res, err := Compile(context.Background(), g, backend.Quartus())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 3)
	assert.Equal(t, "model", res.Graph)
	assert.Equal(t, "quartus", res.Backend)

	assert.Equal(t, []string{"nnet_utils/nnet_conv1d.h", "nnet_utils/nnet_pooling.h"}, res.Includes)

	conv := res.Artifacts[0]
	assert.Equal(t, "Conv1D", conv.Variant)
	assert.Equal(t, "nnet::conv_1d_cl<input_t, layer2_t, config2>(input_1, layer2_out, w2, b2);", conv.Call)
	assert.Contains(t, conv.Config, "strategy = nnet::resource;")

	assert.Equal(t, "nnet::pooling1d_cl<layer2_t, layer3_t, config3>(layer2_out, layer3_out);", res.Artifacts[1].Call)
	assert.Equal(t, "nnet::global_pooling1d_cl<layer3_t, result_t, config4>(layer3_out, layer4_out);", res.Artifacts[2].Call)

	// the resource pass ran before rendering
	n, _ := g.Node("conv1d")
	assert.Equal(t, graph.LayoutTransformed, n.Layout())
	assert.Equal(t, []int{4, 3, 2}, n.Weight("weight").Shape())

	assert.Equal(t, before+1, testutil.ToFloat64(nodesRendered.WithLabelValues("quartus", "Pooling1D")))
}

func TestCompileRejectsChannelsFirst(t *testing.T) {
	before := testutil.ToFloat64(renderFailures.WithLabelValues("quartus", KindNotSupported))

	g := model(t, graph.ChannelsFirst)
	res, err := Compile(context.Background(), g, backend.Quartus())
	require.ErrorIs(t, err, backend.ErrNotSupported)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), `node "pool1d"`)
	assert.Contains(t, err.Error(), "Quartus")

	// rejected before the passes touched any weights
	conv, _ := g.Node("conv1d")
	assert.Equal(t, graph.LayoutUntransformed, conv.Layout())
	assert.Equal(t, []int{3, 2, 4}, conv.Weight("weight").Shape())

	assert.Equal(t, before+1, testutil.ToFloat64(renderFailures.WithLabelValues("quartus", KindNotSupported)))
}

func TestCompileVivadoChannelsFirst(t *testing.T) {
	res, err := Compile(context.Background(), model(t, graph.ChannelsFirst), backend.Vivado())
	require.NoError(t, err)
	assert.Equal(t, "nnet::pooling1d_cf<layer2_t, layer3_t, config3>(layer2_out, layer3_out);", res.Artifacts[1].Call)
}

func TestCompileTwice(t *testing.T) {
	g := model(t, graph.ChannelsLast)
	first, err := Compile(context.Background(), g, backend.Quartus())
	require.NoError(t, err)
	n, _ := g.Node("conv1d")
	data := n.Weight("weight").Data()

	second, err := Compile(context.Background(), g, backend.Quartus())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, data, n.Weight("weight").Data())
}

func TestCompileAfterSnapshot(t *testing.T) {
	g := model(t, graph.ChannelsLast)
	first, err := Compile(context.Background(), g, backend.Quartus())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, g, graph.EncodingFP32))
	reloaded, err := graph.Decode(&buf)
	require.NoError(t, err)

	second, err := Compile(context.Background(), reloaded, backend.Quartus())
	require.NoError(t, err)
	assert.Equal(t, first.Artifacts, second.Artifacts)

	before, _ := g.Node("conv1d")
	after, _ := reloaded.Node("conv1d")
	assert.Equal(t, []int{4, 3, 2}, after.Weight("weight").Shape())
	assert.Equal(t, before.Weight("weight").Data(), after.Weight("weight").Data())
}

func TestCompileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Compile(ctx, model(t, graph.ChannelsLast), backend.Quartus())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Equal(t, KindCanceled, errorKind(err))
}
