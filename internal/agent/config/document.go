// Package config implements the declarative configuration document, its
// loader, its file-change watcher, and struct validation. Unknown keys are
// ignored; type names are matched case-insensitively while ids are
// case-sensitive.
package config

// Document is the top-level configuration shape. Every recognized section
// is optional; an absent section simply yields no components of that kind.
type Document struct {
	Sources            []ComponentSpec `mapstructure:"sources"`
	Sinks              []ComponentSpec `mapstructure:"sinks"`
	Pipes              []PipeSpec      `mapstructure:"pipes"`
	Credentials        []ComponentSpec `mapstructure:"credentials"`
	Plugins            []ComponentSpec `mapstructure:"plugins"`
	Metrics            map[string]any  `mapstructure:"metrics"`
	Telemetrics        map[string]any  `mapstructure:"telemetrics"`
	PerformanceCounter map[string]any  `mapstructure:"performancecounter"`
	// SelfUpdate is minutes between self-update attempts; 0 disables it.
	SelfUpdate int `mapstructure:"selfupdate"`
}

// ComponentSpec is one entry under Sources, Sinks, Credentials, or Plugins.
// Type holds whichever of SourceType/SinkType/CredentialType the section
// calls it; the loader normalizes all three onto this one field.
type ComponentSpec struct {
	Id   string `mapstructure:"id"`
	Type string `mapstructure:"type" validate:"required"`
	// Raw carries every key beyond Id/Type — the component-specific
	// settings a factory's PluginContext.Config view is built from.
	Raw map[string]any `mapstructure:",remain"`
}

// PipeSpec is one entry under Pipes.
type PipeSpec struct {
	Id        string `mapstructure:"id"`
	SourceRef string `mapstructure:"sourceref"`
	SinkRef   string `mapstructure:"sinkref" validate:"required"`
	Type      string `mapstructure:"type"`
}

// DuplicateIds returns every Id that appears more than once among specs,
// used by Validate to flag configuration errors per the error taxonomy's
// "duplicate id" case.
func DuplicateIds(specs ...[]ComponentSpec) []string {
	seen := make(map[string]int)
	for _, group := range specs {
		for _, s := range group {
			if s.Id == "" {
				continue
			}
			seen[s.Id]++
		}
	}

	var dups []string
	for id, count := range seen {
		if count > 1 {
			dups = append(dups, id)
		}
	}
	return dups
}
