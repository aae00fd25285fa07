package client

import (
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-hls/internal/pipeline"
)

// ManifestFields is the layout of a compiled graph as an Arrow record batch,
// one row per node.
var ManifestFields = []arrow.Field{
	{Name: "node", Type: arrow.BinaryTypes.String},
	{Name: "variant", Type: arrow.BinaryTypes.String},
	{Name: "config", Type: arrow.BinaryTypes.String},
	{Name: "call", Type: arrow.BinaryTypes.String},
	{Name: "includes", Type: arrow.ListOf(arrow.BinaryTypes.String)},
}

// ManifestBuilder converts compile results into record batches.
type ManifestBuilder struct {
	mem memory.Allocator
}

func NewManifestBuilder(mem memory.Allocator) *ManifestBuilder {
	return &ManifestBuilder{mem: mem}
}

// Build returns a record batch for res, or nil if it has no artifacts. The
// graph name, backend and combined include list go in the schema metadata.
// The caller releases the batch.
func (b *ManifestBuilder) Build(res *pipeline.Result) arrow.RecordBatch {
	if res == nil || len(res.Artifacts) == 0 {
		return nil
	}

	strs := make([]*array.StringBuilder, 4)
	for i := range strs {
		strs[i] = array.NewStringBuilder(b.mem)
		defer strs[i].Release()
	}
	node, variant, config, call := strs[0], strs[1], strs[2], strs[3]

	includes := array.NewListBuilder(b.mem, arrow.BinaryTypes.String)
	defer includes.Release()
	include := includes.ValueBuilder().(*array.StringBuilder)

	for _, a := range res.Artifacts {
		node.Append(a.Node)
		variant.Append(a.Variant)
		config.Append(a.Config)
		call.Append(a.Call)
		includes.Append(true)
		include.AppendValues(a.Includes, nil)
	}

	cols := make([]arrow.Array, 0, len(ManifestFields))
	for _, sb := range strs {
		cols = append(cols, sb.NewArray())
	}
	cols = append(cols, includes.NewArray())
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	meta := arrow.NewMetadata(
		[]string{"graph", "backend", "includes"},
		[]string{res.Graph, res.Backend, strings.Join(res.Includes, "\n")},
	)
	schema := arrow.NewSchema(ManifestFields, &meta)
	return array.NewRecordBatch(schema, cols, int64(len(res.Artifacts)))
}

// WriteStream writes rec to w in the Arrow IPC stream format.
func WriteStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
