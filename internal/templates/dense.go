package templates

import "github.com/23skdu/longbow-hls/internal/graph"

const denseConfig = `struct config{{.Index}} : nnet::dense_config {
    static const unsigned n_in = {{.Attrs.NIn}};
    static const unsigned n_out = {{.Attrs.NOut}};
    static const unsigned reuse_factor = {{.ReuseFactor}};
    static const unsigned n_zeros = {{.Attrs.NZeros}};
    static const unsigned strategy = nnet::{{.Strategy}};
};
`

const denseCall = `nnet::dense<{{.InputType}}, {{.OutputType}}, {{.Config}}>({{.Input}}, {{.Output}}, {{.Weight "weight"}}, {{.Weight "bias"}});`

func (r *Registry) registerDense() {
	r.Register(graph.Dense, graph.DenseAttrs{}, denseConfig, denseCall)
}
