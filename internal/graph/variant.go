package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownVariant is returned when a layer class name has no LayerVariant.
var ErrUnknownVariant = errors.New("unknown layer variant")

// LayerVariant is the closed set of layer kinds the backend handles.
// A node's variant is fixed when the node is built.
type LayerVariant uint8

const (
	Dense LayerVariant = iota + 1
	Conv1D
	Conv2D
	SeparableConv1D
	SeparableConv2D
	LSTM
	GRU
	MultiHeadAttention
	Pooling1D
	Pooling2D
	GlobalPooling1D
	GlobalPooling2D
)

var variantNames = [...]string{
	Dense:              "Dense",
	Conv1D:             "Conv1D",
	Conv2D:             "Conv2D",
	SeparableConv1D:    "SeparableConv1D",
	SeparableConv2D:    "SeparableConv2D",
	LSTM:               "LSTM",
	GRU:                "GRU",
	MultiHeadAttention: "MultiHeadAttention",
	Pooling1D:          "Pooling1D",
	Pooling2D:          "Pooling2D",
	GlobalPooling1D:    "GlobalPooling1D",
	GlobalPooling2D:    "GlobalPooling2D",
}

// Variants returns every known variant in declaration order.
func Variants() []LayerVariant {
	vs := make([]LayerVariant, 0, len(variantNames)-1)
	for v := Dense; v <= GlobalPooling2D; v++ {
		vs = append(vs, v)
	}
	return vs
}

// Valid reports whether v is one of the declared variants.
func (v LayerVariant) Valid() bool {
	return v >= Dense && v <= GlobalPooling2D
}

func (v LayerVariant) String() string {
	if !v.Valid() {
		return fmt.Sprintf("LayerVariant(%d)", uint8(v))
	}
	return variantNames[v]
}

// ParseVariant resolves a layer class name. On a miss the error carries the
// closest known name when one is reasonably near.
func ParseVariant(name string) (LayerVariant, error) {
	for _, v := range Variants() {
		if variantNames[v] == name {
			return v, nil
		}
	}

	best, score := "", math.MaxInt
	for _, v := range Variants() {
		if d := levenshtein.ComputeDistance(name, variantNames[v]); d < score {
			best, score = variantNames[v], d
		}
	}
	if score <= 3 {
		return 0, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownVariant, name, best)
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownVariant, name)
}

// Family groups variants that share a kernel header and template shape.
type Family string

const (
	FamilyDense     Family = "dense"
	FamilyConv1D    Family = "conv1d"
	FamilyConv2D    Family = "conv2d"
	FamilySepConv1D Family = "sepconv1d"
	FamilySepConv2D Family = "sepconv2d"
	FamilyRecurrent Family = "recurrent"
	FamilyAttention Family = "attention"
	FamilyPooling   Family = "pooling"
)

// Family returns the component family of v. It panics on an invalid variant,
// which can only come from a programming error.
func (v LayerVariant) Family() Family {
	switch v {
	case Dense:
		return FamilyDense
	case Conv1D:
		return FamilyConv1D
	case Conv2D:
		return FamilyConv2D
	case SeparableConv1D:
		return FamilySepConv1D
	case SeparableConv2D:
		return FamilySepConv2D
	case LSTM, GRU:
		return FamilyRecurrent
	case MultiHeadAttention:
		return FamilyAttention
	case Pooling1D, Pooling2D, GlobalPooling1D, GlobalPooling2D:
		return FamilyPooling
	}
	panic(fmt.Sprintf("graph: no family for %s", v))
}

// DeclaredWeights returns the weight tensor names a node of variant v owns.
// Pooling variants own none.
func DeclaredWeights(v LayerVariant) []string {
	switch v {
	case Dense, Conv1D, Conv2D:
		return []string{"weight", "bias"}
	case SeparableConv1D, SeparableConv2D:
		return []string{"depthwise", "pointwise", "bias"}
	case LSTM, GRU:
		return []string{"weight", "bias", "recurrent_weight", "recurrent_bias"}
	case MultiHeadAttention:
		return []string{
			"key_weight", "key_bias",
			"query_weight", "query_bias",
			"value_weight", "value_bias",
			"attention_output_weight", "attention_output_bias",
		}
	}
	return nil
}
