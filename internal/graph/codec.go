package graph

import (
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/x448/float16"
)

// Encoding is the on-wire element format of snapshot weights.
type Encoding string

const (
	EncodingFP32 Encoding = "fp32"
	EncodingFP16 Encoding = "fp16"
)

// snapshot is the CBOR hand-off format written by the front-end once a
// graph is built and annotated.
type snapshot struct {
	Name  string         `cbor:"name"`
	Nodes []nodeSnapshot `cbor:"nodes"`
}

type nodeSnapshot struct {
	Name        string                    `cbor:"name"`
	Index       int                       `cbor:"index"`
	Variant     string                    `cbor:"variant"`
	Strategy    string                    `cbor:"strategy,omitempty"`
	ReuseFactor int                       `cbor:"reuse_factor,omitempty"`
	Input       Port                      `cbor:"input"`
	Output      Port                      `cbor:"output"`
	Attrs       cbor.RawMessage           `cbor:"attrs"`
	Weights     map[string]tensorSnapshot `cbor:"weights,omitempty"`
	// Transformed is set once the layout rewrite has run, so a decoded
	// graph is never rewritten twice.
	Transformed bool                      `cbor:"transformed,omitempty"`
}

type tensorSnapshot struct {
	Shape    []int    `cbor:"shape"`
	Encoding Encoding `cbor:"encoding"`
	Data     []byte   `cbor:"data"`
}

// Decode reads a CBOR graph snapshot.
func Decode(r io.Reader) (*Graph, error) {
	var s snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode graph snapshot: %w", err)
	}

	nodes := make([]*Node, 0, len(s.Nodes))
	for i, ns := range s.Nodes {
		n, err := ns.node()
		if err != nil {
			return nil, fmt.Errorf("failed to load node %d of graph %q: %w", i, s.Name, err)
		}
		nodes = append(nodes, n)
	}
	return New(s.Name, nodes...)
}

func (ns nodeSnapshot) node() (*Node, error) {
	v, err := ParseVariant(ns.Variant)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", ns.Name, err)
	}
	attrs, err := decodeAttributes(v, ns.Attrs)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", ns.Name, err)
	}

	var weights []*WeightTensor
	for _, name := range slices.Sorted(maps.Keys(ns.Weights)) {
		ts := ns.Weights[name]
		data, err := ts.values()
		if err != nil {
			return nil, fmt.Errorf("node %q: weight %q: %w", ns.Name, name, err)
		}
		w, err := NewWeightTensor(name, ts.Shape, data)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", ns.Name, err)
		}
		weights = append(weights, w)
	}

	n, err := NewNode(NodeSpec{
		Name:        ns.Name,
		Index:       ns.Index,
		Variant:     v,
		Strategy:    ns.Strategy,
		ReuseFactor: ns.ReuseFactor,
		Input:       ns.Input,
		Output:      ns.Output,
		Attrs:       attrs,
		Weights:     weights,
	})
	if err != nil {
		return nil, err
	}
	if ns.Transformed {
		n.MarkTransformed()
	}
	return n, nil
}

func decodeAttributes(v LayerVariant, raw cbor.RawMessage) (Attributes, error) {
	switch v {
	case Dense:
		return decodeAs[DenseAttrs](raw)
	case Conv1D, SeparableConv1D:
		return decodeAs[Conv1DAttrs](raw)
	case Conv2D, SeparableConv2D:
		return decodeAs[Conv2DAttrs](raw)
	case LSTM, GRU:
		return decodeAs[RecurrentAttrs](raw)
	case MultiHeadAttention:
		return decodeAs[AttentionAttrs](raw)
	case Pooling1D:
		return decodeAs[Pooling1DAttrs](raw)
	case Pooling2D:
		return decodeAs[Pooling2DAttrs](raw)
	case GlobalPooling1D:
		return decodeAs[GlobalPooling1DAttrs](raw)
	case GlobalPooling2D:
		return decodeAs[GlobalPooling2DAttrs](raw)
	}
	return nil, fmt.Errorf("%w %s", ErrUnknownVariant, v)
}

func decodeAs[T Attributes](raw cbor.RawMessage) (Attributes, error) {
	var a T
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing attrs", ErrAttributes)
	}
	if err := cbor.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttributes, err)
	}
	return a, nil
}

func (ts tensorSnapshot) values() ([]float32, error) {
	switch ts.Encoding {
	case EncodingFP32, "":
		if len(ts.Data)%4 != 0 {
			return nil, fmt.Errorf("fp32 payload of %d bytes", len(ts.Data))
		}
		out := make([]float32, len(ts.Data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(ts.Data[i*4:]))
		}
		return out, nil
	case EncodingFP16:
		if len(ts.Data)%2 != 0 {
			return nil, fmt.Errorf("fp16 payload of %d bytes", len(ts.Data))
		}
		out := make([]float32, len(ts.Data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(ts.Data[i*2:])).Float32()
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", ts.Encoding)
}

// Encode writes g as a CBOR snapshot with weights in the given encoding.
func Encode(w io.Writer, g *Graph, enc Encoding) error {
	s := snapshot{Name: g.Name, Nodes: make([]nodeSnapshot, 0, g.Len())}
	for _, n := range g.Nodes() {
		attrs, err := cbor.Marshal(n.Attrs)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		ns := nodeSnapshot{
			Name:        n.Name,
			Index:       n.Index,
			Variant:     n.Variant().String(),
			Strategy:    n.Strategy,
			ReuseFactor: n.ReuseFactor,
			Input:       n.Input,
			Output:      n.Output,
			Attrs:       attrs,
			Transformed: n.Layout() == LayoutTransformed,
		}
		if names := n.WeightNames(); len(names) > 0 {
			ns.Weights = make(map[string]tensorSnapshot, len(names))
			for _, name := range names {
				t := n.Weight(name)
				data, err := encodeValues(t.Data(), enc)
				if err != nil {
					return fmt.Errorf("node %q: weight %q: %w", n.Name, name, err)
				}
				ns.Weights[name] = tensorSnapshot{Shape: t.Shape(), Encoding: enc, Data: data}
			}
		}
		s.Nodes = append(s.Nodes, ns)
	}
	return cbor.NewEncoder(w).Encode(s)
}

func encodeValues(vals []float32, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingFP32:
		out := make([]byte, len(vals)*4)
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case EncodingFP16:
		out := make([]byte, len(vals)*2)
		for i, v := range vals {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}
