package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads the configuration document from a YAML file on disk via
// viper.
type Loader struct {
	path string
	v    *viper.Viper
}

// NewLoader builds a Loader for the file at path. The file is not read
// until Load is called.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Loader{path: path, v: v}
}

// Load reads and parses the document. It does not validate; call Validate
// on the result separately so callers can decide whether to treat
// validation failures as fatal or reportable.
func (l *Loader) Load() (*Document, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", l.path, err)
	}

	var doc Document
	if err := l.v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", l.path, err)
	}

	for _, section := range []struct {
		specs []ComponentSpec
		key   string
	}{{doc.Sources, "sourcetype"}, {doc.Sinks, "sinktype"}, {doc.Credentials, "credentialtype"}} {
		for i := range section.specs {
			spec := &section.specs[i]
			for k, v := range spec.Raw {
				if name, ok := v.(string); ok && spec.Type == "" && strings.EqualFold(k, section.key) {
					spec.Type = name
					delete(spec.Raw, k)
				}
			}
		}
	}

	return &doc, nil
}

// Path returns the configuration file path this loader reads from.
func (l *Loader) Path() string {
	return l.path
}
