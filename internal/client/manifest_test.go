package client

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-hls/internal/pipeline"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Graph:   "model",
		Backend: "quartus",
		Artifacts: []pipeline.Artifact{
			{
				Node:     "fc1",
				Variant:  "Dense",
				Config:   "struct config2 : nnet::dense_config {};\n",
				Call:     "nnet::dense<input_t, layer2_t, config2>(input_1, layer2_out, w2, b2);",
				Includes: []string{"nnet_utils/nnet_dense.h"},
			},
			{
				Node:     "pool",
				Variant:  "GlobalPooling1D",
				Config:   "struct config3 : nnet::pooling1d_config {};\n",
				Call:     "nnet::global_pooling1d_cl<layer2_t, result_t, config3>(layer2_out, layer3_out);",
				Includes: []string{"nnet_utils/nnet_pooling.h"},
			},
		},
		Includes: []string{"nnet_utils/nnet_dense.h", "nnet_utils/nnet_pooling.h"},
	}
}

func TestManifestBuilder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	builder := NewManifestBuilder(mem)

	t.Run("Empty", func(t *testing.T) {
		assert.Nil(t, builder.Build(nil))
		assert.Nil(t, builder.Build(&pipeline.Result{Graph: "empty"}))
	})

	t.Run("Rows", func(t *testing.T) {
		rec := builder.Build(sampleResult())
		require.NotNil(t, rec)
		defer rec.Release()

		assert.Equal(t, int64(2), rec.NumRows())
		assert.Equal(t, int64(5), rec.NumCols())
		assert.Equal(t, "node", rec.ColumnName(0))
		assert.Equal(t, "includes", rec.ColumnName(4))

		nodes := rec.Column(0).(*array.String)
		assert.Equal(t, "fc1", nodes.Value(0))
		assert.Equal(t, "pool", nodes.Value(1))
		calls := rec.Column(3).(*array.String)
		assert.Contains(t, calls.Value(1), "global_pooling1d_cl")

		includes := rec.Column(4).(*array.List)
		assert.Equal(t, []int32{0, 1, 2}, includes.Offsets())

		meta := rec.Schema().Metadata()
		graph, ok := meta.GetValue("graph")
		require.True(t, ok)
		assert.Equal(t, "model", graph)
		inc, _ := meta.GetValue("includes")
		assert.Equal(t, "nnet_utils/nnet_dense.h\nnnet_utils/nnet_pooling.h", inc)
	})
}

func TestWriteStream(t *testing.T) {
	rec := NewManifestBuilder(memory.NewGoAllocator()).Build(sampleResult())
	defer rec.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, rec))

	rdr, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer rdr.Release()
	require.True(t, rdr.Next())
	assert.Equal(t, int64(2), rdr.Record().NumRows())
	assert.False(t, rdr.Next())
}
