package config

// SourceDef is one bootstrap source definition. Bootstrap sources live in
// the global scope and are quota-exempt.
type SourceDef struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Type    string   `yaml:"type"`
	Tags    []string `yaml:"tags"`
	Enabled *bool    `yaml:"enabled"`
}

// File is one YAML definition file holding any number of sources.
type File struct {
	Sources []SourceDef `yaml:"sources"`
}
