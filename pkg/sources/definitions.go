package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package sources contains pluggable feed sources configured from YAML/JSON files.

const (
	TypeRSS  = "rss"
	TypeHTML = "html"

	defaultMaxItems = 75
)

// Definition is a single source entry declared in the sources file.
type Definition struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Type         string         `json:"type" yaml:"type"`
	SourceURL    string         `json:"source_url" yaml:"source_url"`
	Enabled      *bool          `json:"enabled" yaml:"enabled"`
	MaxItems     int            `json:"max_items" yaml:"max_items"`
	LinkPattern  string         `json:"link_pattern" yaml:"link_pattern"`
	LinkTemplate string         `json:"link_template" yaml:"link_template"`
	Config       map[string]any `json:"config" yaml:"config"`
}

// EnabledValue returns enabled flag defaulting to true.
func (d Definition) EnabledValue() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}

type registryFile struct {
	Sources []Definition `json:"sources" yaml:"sources"`
}

// Registry is the ordered, immutable list of source definitions loaded at startup.
type Registry struct {
	defs []Definition
	idx  map[string]Definition
}

// LoadRegistry loads source definitions from a YAML or JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	return NewRegistry(parsed.Sources)
}

// NewRegistry validates defs and builds a registry preserving their order.
func NewRegistry(defs []Definition) (*Registry, error) {
	reg := &Registry{
		defs: make([]Definition, 0, len(defs)),
		idx:  make(map[string]Definition, len(defs)),
	}
	for i := range defs {
		d := sanitizeDefinition(defs[i])
		if err := validateDefinition(d); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := reg.idx[d.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", d.ID)
		}
		reg.defs = append(reg.defs, d)
		reg.idx[d.ID] = d
	}
	return reg, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s sources: %w", name, err)
	}
	return reg, nil
}

func sanitizeDefinition(d Definition) Definition {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.SourceURL = strings.TrimSpace(d.SourceURL)
	d.LinkPattern = strings.TrimSpace(d.LinkPattern)
	d.LinkTemplate = strings.TrimSpace(d.LinkTemplate)

	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Config == nil {
		d.Config = map[string]any{}
	}
	if d.MaxItems <= 0 {
		d.MaxItems = defaultMaxItems
	}
	return d
}

func validateDefinition(d Definition) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if d.Type == "" {
		return fmt.Errorf("type is required for source %q", d.ID)
	}
	if d.SourceURL == "" {
		return fmt.Errorf("source_url is required for source %q", d.ID)
	}
	if (d.LinkPattern == "") != (d.LinkTemplate == "") {
		return fmt.Errorf("link_pattern and link_template must be set together for source %q", d.ID)
	}
	if d.LinkPattern != "" {
		if _, err := regexp.Compile(d.LinkPattern); err != nil {
			return fmt.Errorf("invalid link_pattern for source %q: %w", d.ID, err)
		}
	}
	return nil
}

// All returns every definition in file order.
func (r *Registry) All() []Definition {
	if r == nil {
		return nil
	}
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Enabled returns definitions that are enabled, in file order.
func (r *Registry) Enabled() []Definition {
	all := r.All()
	out := make([]Definition, 0, len(all))
	for _, d := range all {
		if d.EnabledValue() {
			out = append(out, d)
		}
	}
	return out
}

// ByID returns the definition with the given id, if loaded.
func (r *Registry) ByID(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	d, ok := r.idx[strings.TrimSpace(id)]
	return d, ok
}
