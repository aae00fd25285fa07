package templates

import "github.com/23skdu/longbow-hls/internal/graph"

const attentionConfig = `struct config{{.Index}} : nnet::multiheadattention_config {
    static const unsigned num_heads = {{.Attrs.NumHeads}};
    static const unsigned head_dim_key = {{.Attrs.HeadDimKey}};
    static const unsigned head_dim_value = {{.Attrs.HeadDimValue}};
    static const unsigned feature_dim = {{.Attrs.FeatureDim}};
    static const unsigned seq_len = {{.Attrs.SeqLen}};
    static const unsigned reuse_factor = {{.ReuseFactor}};
    static const unsigned strategy = nnet::{{.Strategy}};
};
`

// The layer attends over its own input, so it is passed as both query and value.
const attentionCall = `nnet::multiheadattention<{{.InputType}}, {{.OutputType}}, {{.Config}}>({{.Input}}, {{.Input}}, {{.Output}}, ` +
	`{{.Weight "attention_output_weight"}}, {{.Weight "attention_output_bias"}}, ` +
	`{{.Weight "key_weight"}}, {{.Weight "key_bias"}}, ` +
	`{{.Weight "query_weight"}}, {{.Weight "query_bias"}}, ` +
	`{{.Weight "value_weight"}}, {{.Weight "value_bias"}});`

func (r *Registry) registerAttention() {
	r.Register(graph.MultiHeadAttention, graph.AttentionAttrs{}, attentionConfig, attentionCall)
}
