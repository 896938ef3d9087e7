package models

// Definition is a reusable template describing a problem source and its
// parameters. Definitions are authored out-of-band and treated as immutable
// once a running session references them.
type Definition struct {
	Title          string   `json:"title"`
	SourceTemplate string   `json:"source_template,omitempty"`
	ParameterNames []string `json:"parameter_names,omitempty"`
}
