// Package config loads bootstrap source definitions from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/courant-io/courant/app/feed"
)

type Loader struct {
	sourcesDir string
}

func NewLoader(sourcesDir string) *Loader {
	return &Loader{sourcesDir: sourcesDir}
}

// LoadAll reads every YAML file in the sources directory and returns the
// defined sources. A missing directory yields an empty set, not an error.
func (l *Loader) LoadAll() ([]*feed.Source, error) {
	if _, err := os.Stat(l.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	var sources []*feed.Source
	for _, file := range files {
		defs, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
		sources = append(sources, defs...)
	}

	return sources, nil
}

func (l *Loader) loadFile(path string) ([]*feed.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	sources := make([]*feed.Source, 0, len(f.Sources))
	for i, def := range f.Sources {
		source, err := l.toSource(def)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		sources = append(sources, source)
	}

	return sources, nil
}

func (l *Loader) toSource(def SourceDef) (*feed.Source, error) {
	if def.URL == "" {
		return nil, fmt.Errorf("source URL is required")
	}

	id, err := feed.SourceIDFromURL(def.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL %q: %w", def.URL, err)
	}

	name := def.Name
	if name == "" {
		name = id
	}

	feedType := feed.TypeRSS
	switch def.Type {
	case "", "rss":
	case "atom":
		feedType = feed.TypeAtom
	case "json":
		feedType = feed.TypeJSONFeed
	case "newsletter":
		feedType = feed.TypeNewsletter
	default:
		return nil, fmt.Errorf("unknown source type %q", def.Type)
	}

	enabled := true
	if def.Enabled != nil {
		enabled = *def.Enabled
	}

	tags := def.Tags
	if tags == nil {
		tags = []string{}
	}

	return &feed.Source{
		ID:      id,
		Name:    name,
		URL:     def.URL,
		Type:    feedType,
		Enabled: enabled,
		Tags:    tags,
		Scope:   feed.ScopeGlobal,
	}, nil
}
