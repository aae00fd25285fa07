package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-hls/internal/backend"
	"github.com/23skdu/longbow-hls/internal/graph"
	"github.com/23skdu/longbow-hls/internal/pipeline"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, rec arrow.RecordBatch) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func snapshot(t *testing.T, name string, format graph.DataFormat) []byte {
	t.Helper()
	w, err := graph.NewWeightTensor("weight", []int{8, 4}, make([]float32, 32))
	require.NoError(t, err)
	bias, err := graph.NewWeightTensor("bias", []int{4}, make([]float32, 4))
	require.NoError(t, err)

	dense, err := graph.NewNode(graph.NodeSpec{
		Name:     "fc1",
		Index:    2,
		Variant:  graph.Dense,
		Strategy: "resource",
		Input:    graph.Port{Var: "input_1", Type: "input_t"},
		Output:   graph.Port{Var: "layer2_out", Type: "layer2_t"},
		Attrs:    graph.DenseAttrs{NIn: 8, NOut: 4},
		Weights:  []*graph.WeightTensor{w, bias},
	})
	require.NoError(t, err)
	pool, err := graph.NewNode(graph.NodeSpec{
		Name:    "pool",
		Index:   3,
		Variant: graph.Pooling1D,
		Input:   graph.Port{Var: "layer2_out", Type: "layer2_t"},
		Output:  graph.Port{Var: "layer3_out", Type: "result_t"},
		Attrs: graph.Pooling1DAttrs{
			StrideWidth: 2, PoolWidth: 2, NIn: 4, NOut: 2, NFilt: 1,
			PoolOp: graph.PoolMax, DataFormat: format,
		},
	})
	require.NoError(t, err)

	g, err := graph.New(name, dense, pool)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, g, graph.EncodingFP32))
	return buf.Bytes()
}

func post(srv *Server, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)
	return rr
}

func TestServer_Compile(t *testing.T) {
	backends, err := backend.NewSet()
	require.NoError(t, err)
	pub := &mockPublisher{}
	srv := NewServer(backends, "quartus", pub, 4)
	body := snapshot(t, "model", graph.ChannelsLast)

	t.Run("Compiles and publishes", func(t *testing.T) {
		pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

		rr := post(srv, "/compile", body)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "application/cbor", rr.Header().Get("Content-Type"))

		var res pipeline.Result
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &res))
		assert.Equal(t, "quartus", res.Backend)
		require.Len(t, res.Artifacts, 2)
		assert.Equal(t, "nnet::dense<input_t, layer2_t, config2>(input_1, layer2_out, w2, b2);", res.Artifacts[0].Call)
		assert.Equal(t, []string{"nnet_utils/nnet_dense.h", "nnet_utils/nnet_pooling.h"}, res.Includes)
		pub.AssertExpectations(t)
	})

	t.Run("Served from cache", func(t *testing.T) {
		rr := post(srv, "/compile?backend=Quartus", body)
		require.Equal(t, http.StatusOK, rr.Code)
		pub.AssertNumberOfCalls(t, "Publish", 1)
	})

	t.Run("Channels first on Quartus", func(t *testing.T) {
		rr := post(srv, "/compile", snapshot(t, "cf", graph.ChannelsFirst))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "Quartus")
	})

	t.Run("Channels first on Vivado", func(t *testing.T) {
		pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
		rr := post(srv, "/compile?backend=vivado", snapshot(t, "cf", graph.ChannelsFirst))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var res pipeline.Result
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &res))
		assert.Contains(t, res.Artifacts[1].Call, "pooling1d_cf")
	})

	t.Run("Bad body", func(t *testing.T) {
		rr := post(srv, "/compile", []byte("not cbor"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Unknown backend", func(t *testing.T) {
		rr := post(srv, "/compile?backend=vitis", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/compile", nil)
		rr := httptest.NewRecorder()
		srv.routes().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("Health Check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		srv.routes().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.cbor")
	bad := filepath.Join(dir, "bad.cbor")
	require.NoError(t, os.WriteFile(good, snapshot(t, "good", graph.ChannelsLast), 0o644))
	require.NoError(t, os.WriteFile(bad, snapshot(t, "bad", graph.ChannelsFirst), 0o644))

	prev := *outPath
	defer func() { *outPath = prev }()

	t.Run("Writes manifest", func(t *testing.T) {
		*outPath = filepath.Join(dir, "good.arrows")
		require.NoError(t, runBatch(context.Background(), backend.Quartus(), nil, []string{good}))

		f, err := os.Open(*outPath)
		require.NoError(t, err)
		defer f.Close()
		rdr, err := ipc.NewReader(f)
		require.NoError(t, err)
		defer rdr.Release()
		require.True(t, rdr.Next())
		assert.Equal(t, int64(2), rdr.Record().NumRows())
	})

	t.Run("Failure leaves no output", func(t *testing.T) {
		*outPath = filepath.Join(dir, "mixed.arrows")
		err := runBatch(context.Background(), backend.Quartus(), nil, []string{good, bad})
		require.ErrorIs(t, err, backend.ErrNotSupported)
		assert.Contains(t, err.Error(), "bad.cbor")

		_, statErr := os.Stat(*outPath)
		assert.True(t, os.IsNotExist(statErr))
	})
}
