package stopwords

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// file is the YAML layout accepted by Load.
//
//	stopwords:
//	  - kernel
//	  - com
type file struct {
	Stopwords []string `yaml:"stopwords"`
}

// Load reads a stopword list from path. Files ending in .yaml or .yml are
// parsed as YAML; anything else is read as one word per line.
func Load(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stopwords: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("stopwords: parse %s: %w", path, err)
		}
		return New(f.Stopwords...), nil
	default:
		return parseText(string(data)), nil
	}
}

// FromConfig returns the English list, extended with the words in path when
// path is not empty.
func FromConfig(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return English(), nil
	}
	extra, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Union(English(), extra), nil
}
