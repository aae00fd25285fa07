package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// ErrAttributes is returned when a node's attribute record does not fit its variant.
var ErrAttributes = errors.New("invalid layer attributes")

// PoolOp selects the reduction a pooling kernel applies.
type PoolOp uint8

const (
	PoolMax PoolOp = iota + 1
	PoolAverage
)

func (p PoolOp) String() string {
	switch p {
	case PoolMax:
		return "Max"
	case PoolAverage:
		return "Average"
	}
	return fmt.Sprintf("PoolOp(%d)", uint8(p))
}

// ParsePoolOp accepts the kernel spelling ("Max", "Average").
func ParsePoolOp(s string) (PoolOp, error) {
	switch s {
	case "Max":
		return PoolMax, nil
	case "Average":
		return PoolAverage, nil
	}
	return 0, fmt.Errorf("%w: pool_op %q", ErrAttributes, s)
}

func (p PoolOp) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.String())
}

func (p *PoolOp) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	op, err := ParsePoolOp(s)
	if err != nil {
		return err
	}
	*p = op
	return nil
}

// DataFormat is the channel ordering of a layer's activations.
type DataFormat uint8

const (
	ChannelsLast DataFormat = iota
	ChannelsFirst
)

func (f DataFormat) String() string {
	if f == ChannelsFirst {
		return "channels_first"
	}
	return "channels_last"
}

// ParseDataFormat accepts "channels_last" and "channels_first". The empty
// string means channels_last.
func ParseDataFormat(s string) (DataFormat, error) {
	switch s {
	case "", "channels_last":
		return ChannelsLast, nil
	case "channels_first":
		return ChannelsFirst, nil
	}
	return 0, fmt.Errorf("%w: data_format %q", ErrAttributes, s)
}

func (f DataFormat) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(f.String())
}

func (f *DataFormat) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	df, err := ParseDataFormat(s)
	if err != nil {
		return err
	}
	*f = df
	return nil
}

// Attributes is the per-variant attribute record of a node. The set of
// implementations is closed to this package.
type Attributes interface {
	accepts(v LayerVariant) bool
	validate() error
}

// Formatted is implemented by attribute records that carry a data_format.
type Formatted interface {
	Attributes
	Format() DataFormat
}

// DenseAttrs describes a fully connected layer.
type DenseAttrs struct {
	NIn    int `cbor:"n_in"`
	NOut   int `cbor:"n_out"`
	NZeros int `cbor:"n_zeros"`
}

func (DenseAttrs) accepts(v LayerVariant) bool { return v == Dense }

func (a DenseAttrs) validate() error {
	return positive(map[string]int{"n_in": a.NIn, "n_out": a.NOut})
}

// Conv1DAttrs describes Conv1D and SeparableConv1D layers.
type Conv1DAttrs struct {
	InWidth     int        `cbor:"in_width"`
	NChan       int        `cbor:"n_chan"`
	FiltWidth   int        `cbor:"filt_width"`
	NFilt       int        `cbor:"n_filt"`
	StrideWidth int        `cbor:"stride_width"`
	PadLeft     int        `cbor:"pad_left"`
	PadRight    int        `cbor:"pad_right"`
	OutWidth    int        `cbor:"out_width"`
	DataFormat  DataFormat `cbor:"data_format"`
}

func (Conv1DAttrs) accepts(v LayerVariant) bool { return v == Conv1D || v == SeparableConv1D }

func (a Conv1DAttrs) validate() error {
	return positive(map[string]int{
		"in_width": a.InWidth, "n_chan": a.NChan, "filt_width": a.FiltWidth,
		"n_filt": a.NFilt, "stride_width": a.StrideWidth, "out_width": a.OutWidth,
	})
}

func (a Conv1DAttrs) Format() DataFormat { return a.DataFormat }

// Conv2DAttrs describes Conv2D and SeparableConv2D layers.
type Conv2DAttrs struct {
	InHeight     int        `cbor:"in_height"`
	InWidth      int        `cbor:"in_width"`
	NChan        int        `cbor:"n_chan"`
	FiltHeight   int        `cbor:"filt_height"`
	FiltWidth    int        `cbor:"filt_width"`
	NFilt        int        `cbor:"n_filt"`
	StrideHeight int        `cbor:"stride_height"`
	StrideWidth  int        `cbor:"stride_width"`
	PadTop       int        `cbor:"pad_top"`
	PadBottom    int        `cbor:"pad_bottom"`
	PadLeft      int        `cbor:"pad_left"`
	PadRight     int        `cbor:"pad_right"`
	OutHeight    int        `cbor:"out_height"`
	OutWidth     int        `cbor:"out_width"`
	DataFormat   DataFormat `cbor:"data_format"`
}

func (Conv2DAttrs) accepts(v LayerVariant) bool { return v == Conv2D || v == SeparableConv2D }

func (a Conv2DAttrs) validate() error {
	return positive(map[string]int{
		"in_height": a.InHeight, "in_width": a.InWidth, "n_chan": a.NChan,
		"filt_height": a.FiltHeight, "filt_width": a.FiltWidth, "n_filt": a.NFilt,
		"stride_height": a.StrideHeight, "stride_width": a.StrideWidth,
		"out_height": a.OutHeight, "out_width": a.OutWidth,
	})
}

func (a Conv2DAttrs) Format() DataFormat { return a.DataFormat }

// RecurrentAttrs describes LSTM and GRU layers.
type RecurrentAttrs struct {
	NIn             int  `cbor:"n_in"`
	NOut            int  `cbor:"n_out"`
	NSequence       int  `cbor:"n_sequence"`
	ReturnSequences bool `cbor:"return_sequences"`
}

func (RecurrentAttrs) accepts(v LayerVariant) bool { return v == LSTM || v == GRU }

func (a RecurrentAttrs) validate() error {
	return positive(map[string]int{"n_in": a.NIn, "n_out": a.NOut, "n_sequence": a.NSequence})
}

// AttentionAttrs describes a MultiHeadAttention layer.
type AttentionAttrs struct {
	NumHeads     int `cbor:"num_heads"`
	HeadDimKey   int `cbor:"head_dim_key"`
	HeadDimValue int `cbor:"head_dim_value"`
	FeatureDim   int `cbor:"feature_dim"`
	SeqLen       int `cbor:"seq_len"`
}

func (AttentionAttrs) accepts(v LayerVariant) bool { return v == MultiHeadAttention }

func (a AttentionAttrs) validate() error {
	return positive(map[string]int{
		"num_heads": a.NumHeads, "head_dim_key": a.HeadDimKey,
		"head_dim_value": a.HeadDimValue, "feature_dim": a.FeatureDim, "seq_len": a.SeqLen,
	})
}

// Pooling1DAttrs describes a Pooling1D layer.
type Pooling1DAttrs struct {
	StrideWidth int        `cbor:"stride_width"`
	PoolWidth   int        `cbor:"pool_width"`
	NIn         int        `cbor:"n_in"`
	NOut        int        `cbor:"n_out"`
	NFilt       int        `cbor:"n_filt"`
	PadLeft     int        `cbor:"pad_left"`
	PadRight    int        `cbor:"pad_right"`
	PoolOp      PoolOp     `cbor:"pool_op"`
	DataFormat  DataFormat `cbor:"data_format"`
}

func (Pooling1DAttrs) accepts(v LayerVariant) bool { return v == Pooling1D }

func (a Pooling1DAttrs) validate() error {
	if err := validPoolOp(a.PoolOp); err != nil {
		return err
	}
	return positive(map[string]int{
		"stride_width": a.StrideWidth, "pool_width": a.PoolWidth,
		"n_in": a.NIn, "n_out": a.NOut, "n_filt": a.NFilt,
	})
}

func (a Pooling1DAttrs) Format() DataFormat { return a.DataFormat }

// Pooling2DAttrs describes a Pooling2D layer.
type Pooling2DAttrs struct {
	StrideHeight int        `cbor:"stride_height"`
	StrideWidth  int        `cbor:"stride_width"`
	PoolHeight   int        `cbor:"pool_height"`
	PoolWidth    int        `cbor:"pool_width"`
	InHeight     int        `cbor:"in_height"`
	InWidth      int        `cbor:"in_width"`
	OutHeight    int        `cbor:"out_height"`
	OutWidth     int        `cbor:"out_width"`
	NFilt        int        `cbor:"n_filt"`
	PadTop       int        `cbor:"pad_top"`
	PadBottom    int        `cbor:"pad_bottom"`
	PadLeft      int        `cbor:"pad_left"`
	PadRight     int        `cbor:"pad_right"`
	PoolOp       PoolOp     `cbor:"pool_op"`
	DataFormat   DataFormat `cbor:"data_format"`
}

func (Pooling2DAttrs) accepts(v LayerVariant) bool { return v == Pooling2D }

func (a Pooling2DAttrs) validate() error {
	if err := validPoolOp(a.PoolOp); err != nil {
		return err
	}
	return positive(map[string]int{
		"stride_height": a.StrideHeight, "stride_width": a.StrideWidth,
		"pool_height": a.PoolHeight, "pool_width": a.PoolWidth,
		"in_height": a.InHeight, "in_width": a.InWidth,
		"out_height": a.OutHeight, "out_width": a.OutWidth, "n_filt": a.NFilt,
	})
}

func (a Pooling2DAttrs) Format() DataFormat { return a.DataFormat }

// GlobalPooling1DAttrs describes a GlobalPooling1D layer.
type GlobalPooling1DAttrs struct {
	NIn        int        `cbor:"n_in"`
	NFilt      int        `cbor:"n_filt"`
	PoolOp     PoolOp     `cbor:"pool_op"`
	DataFormat DataFormat `cbor:"data_format"`
}

func (GlobalPooling1DAttrs) accepts(v LayerVariant) bool { return v == GlobalPooling1D }

func (a GlobalPooling1DAttrs) validate() error {
	if err := validPoolOp(a.PoolOp); err != nil {
		return err
	}
	return positive(map[string]int{"n_in": a.NIn, "n_filt": a.NFilt})
}

func (a GlobalPooling1DAttrs) Format() DataFormat { return a.DataFormat }

// GlobalPooling2DAttrs describes a GlobalPooling2D layer.
type GlobalPooling2DAttrs struct {
	InHeight   int        `cbor:"in_height"`
	InWidth    int        `cbor:"in_width"`
	NFilt      int        `cbor:"n_filt"`
	PoolOp     PoolOp     `cbor:"pool_op"`
	DataFormat DataFormat `cbor:"data_format"`
}

func (GlobalPooling2DAttrs) accepts(v LayerVariant) bool { return v == GlobalPooling2D }

func (a GlobalPooling2DAttrs) validate() error {
	if err := validPoolOp(a.PoolOp); err != nil {
		return err
	}
	return positive(map[string]int{"in_height": a.InHeight, "in_width": a.InWidth, "n_filt": a.NFilt})
}

func (a GlobalPooling2DAttrs) Format() DataFormat { return a.DataFormat }

func validPoolOp(op PoolOp) error {
	if op != PoolMax && op != PoolAverage {
		return fmt.Errorf("%w: pool_op not set", ErrAttributes)
	}
	return nil
}

func positive(fields map[string]int) error {
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if v := fields[name]; v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrAttributes, name, v)
		}
	}
	return nil
}
