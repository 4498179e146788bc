// Package datasets bundles the sample datasets loaded into the master
// database on first boot.
package datasets

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

const manifestFile = "datasets.yaml"

//go:embed datasets.yaml mysql postgres
var bundled embed.FS

// Dataset is one manifest entry. Scripts maps a dialect name to the path of
// its load script inside the bundle.
type Dataset struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Scripts     map[string]string `yaml:"scripts"`
}

// Manifest lists datasets in load order.
type Manifest struct {
	Datasets []Dataset `yaml:"datasets"`

	files fs.FS
}

// Bundled returns the manifest compiled into the binary.
func Bundled() (*Manifest, error) {
	return Load(bundled)
}

// Load reads datasets.yaml from files. Script paths are resolved against files.
func Load(files fs.FS) (*Manifest, error) {
	raw, err := fs.ReadFile(files, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", manifestFile, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifestFile, err)
	}

	seen := make(map[string]bool, len(m.Datasets))
	for _, d := range m.Datasets {
		if d.Name == "" {
			return nil, fmt.Errorf("%s: dataset without a name", manifestFile)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%s: duplicate dataset %q", manifestFile, d.Name)
		}
		seen[d.Name] = true
	}

	m.files = files
	return &m, nil
}

// Script returns the load script of d for dialect. ok is false when the
// dataset has no script for that dialect.
func (m *Manifest) Script(d Dataset, dialect string) (script string, ok bool, err error) {
	path, ok := d.Scripts[dialect]
	if !ok {
		return "", false, nil
	}
	raw, err := fs.ReadFile(m.files, path)
	if err != nil {
		return "", true, fmt.Errorf("dataset %s: %w", d.Name, err)
	}
	return string(raw), true, nil
}
