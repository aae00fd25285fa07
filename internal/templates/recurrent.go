package templates

import "github.com/23skdu/longbow-hls/internal/graph"

func recurrentConfig(kind string) string {
	return `struct config{{.Index}} : nnet::` + kind + `_config {
    static const unsigned n_in = {{.Attrs.NIn}};
    static const unsigned n_out = {{.Attrs.NOut}};
    static const unsigned n_state = {{.Attrs.NOut}};
    static const unsigned n_sequence = {{.Attrs.NSequence}};
    static const bool return_sequences = {{.Attrs.ReturnSequences}};
    static const unsigned reuse_factor = {{.ReuseFactor}};
    static const unsigned strategy = nnet::{{.Strategy}};
};
`
}

func recurrentCall(kind string) string {
	return `nnet::` + kind + `_stack<{{.InputType}}, {{.OutputType}}, {{.Config}}>({{.Input}}, {{.Output}}, ` +
		`{{.Weight "weight"}}, {{.Weight "recurrent_weight"}}, {{.Weight "bias"}}, {{.Weight "recurrent_bias"}});`
}

func (r *Registry) registerRecurrent() {
	r.Register(graph.LSTM, graph.RecurrentAttrs{}, recurrentConfig("lstm"), recurrentCall("lstm"))
	r.Register(graph.GRU, graph.RecurrentAttrs{}, recurrentConfig("gru"), recurrentCall("gru"))
}
