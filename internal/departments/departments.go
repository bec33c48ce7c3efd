// Package departments loads the registry of redirect targets: department
// names the classifier may choose, each mapped to a forwarding address.
package departments

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Department is one redirect target.
type Department struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
}

// Registry is an immutable name-to-address lookup loaded at startup.
type Registry struct {
	byName map[string]Department
	names  []string
}

type registryFile struct {
	Departments []Department `yaml:"departments"`
}

// Load reads the registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read departments file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse departments yaml: %w", err)
	}
	if len(f.Departments) == 0 {
		return nil, fmt.Errorf("departments file defines no departments")
	}

	byName := make(map[string]Department, len(f.Departments))
	names := make([]string, 0, len(f.Departments))
	for _, d := range f.Departments {
		if d.Name == "" || d.Address == "" {
			return nil, fmt.Errorf("department entry missing name or address: %+v", d)
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate department %q", d.Name)
		}
		byName[d.Name] = d
		names = append(names, d.Name)
	}
	sort.Strings(names)

	return &Registry{byName: byName, names: names}, nil
}

// Names returns the sorted department names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Lookup resolves a department name to its entry.
func (r *Registry) Lookup(name string) (Department, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every department sorted by name.
func (r *Registry) All() []Department {
	out := make([]Department, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}
