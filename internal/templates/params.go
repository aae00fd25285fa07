package templates

import (
	"fmt"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/23skdu/longbow-hls/internal/graph"
)

// defaultStrategy is rendered for nodes that carry no strategy.
const defaultStrategy = "latency"

// ConfigParams is the value a config-block template renders against.
type ConfigParams struct {
	// Index names the generated config symbol, config<Index>.
	Index       int
	Attrs       graph.Attributes
	ReuseFactor int
	Strategy    string
}

// CallParams is the value an invocation template renders against.
type CallParams struct {
	Config     string
	InputType  string
	OutputType string
	Input      string
	Output     string
	// DataFormat is the short channel-order tag, "cl" or "cf".
	DataFormat string
	Strategy   string
	Weights    map[string]string

	declared []string
}

// Weight returns the generated symbol of a named tensor. Templates call it as
// {{.Weight "bias"}}; a name the variant does not declare aborts rendering.
func (p CallParams) Weight(name string) (string, error) {
	if !slices.Contains(p.declared, name) {
		return "", fmt.Errorf("weight %q is not declared", name)
	}
	sym, ok := p.Weights[name]
	if !ok {
		return "", fmt.Errorf("weight %q has no symbol", name)
	}
	return sym, nil
}

func configParams(n *graph.Node) ConfigParams {
	return ConfigParams{
		Index:       n.Index,
		Attrs:       n.Attrs,
		ReuseFactor: n.ReuseFactor,
		Strategy:    strategy(n.Strategy),
	}
}

func callParams(n *graph.Node, dataFormat string) CallParams {
	return CallParams{
		Config:     fmt.Sprintf("config%d", n.Index),
		InputType:  n.Input.Type,
		OutputType: n.Output.Type,
		Input:      n.Input.Var,
		Output:     n.Output.Var,
		DataFormat: dataFormat,
		Strategy:   strategy(n.Strategy),
		Weights:    weightSymbols(n.Variant(), n.Index),
		declared:   graph.DeclaredWeights(n.Variant()),
	}
}

func strategy(s string) string {
	if s == "" {
		return defaultStrategy
	}
	return cases.Lower(language.Und).String(s)
}

var weightPrefix = map[string]string{
	"weight":           "w",
	"bias":             "b",
	"recurrent_weight": "wr",
	"recurrent_bias":   "br",
	"depthwise":        "d",
	"pointwise":        "p",
}

// weightSymbols names the generated weight arrays of a node, e.g. w3 and b3
// for the dense layer with index 3.
func weightSymbols(v graph.LayerVariant, index int) map[string]string {
	names := graph.DeclaredWeights(v)
	out := make(map[string]string, len(names))
	for _, name := range names {
		prefix, ok := weightPrefix[name]
		if !ok {
			prefix = name
		}
		out[name] = fmt.Sprintf("%s%d", prefix, index)
	}
	return out
}
