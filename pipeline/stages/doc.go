// Package stages provides the built-in analysis stages: deterministic
// regex-based extractors that make the pipeline useful without any
// external NLU service. They also serve as reference implementations of
// the pipeline.Stage contract.
package stages
