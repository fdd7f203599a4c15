// Package refdata loads versioned geospatial reference datasets from
// shapefiles into immutable in-memory sets. Each dataset directory carries a
// manifest.yaml naming the shapefile, its version, and the attribute fields
// the pipeline depends on; missing fields fail the load up front rather than
// being silently defaulted at query time.
package refdata

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Dataset names known to the pipeline. Analyzers request sets by these names.
const (
	DatasetQCT      = "qct"      // federally qualified census tracts
	DatasetDDA      = "dda"      // difficult development areas (ZIP-based)
	DatasetResource = "resource" // state opportunity-area tiers
	DatasetFlood    = "flood"    // flood hazard zones
	DatasetFire     = "fire"     // fire hazard severity zones
)

// Manifest describes one reference dataset in a stable, versioned form.
type Manifest struct {
	Dataset   string   `yaml:"dataset"`
	Version   string   `yaml:"version"`
	Shapefile string   `yaml:"shapefile"`
	IDField   string   `yaml:"id_field"`
	Fields    []string `yaml:"fields"`
}

// ReadManifest loads and validates manifest.yaml from a dataset directory.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "manifest.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse manifest %s", path)
	}

	if m.Dataset == "" {
		return nil, eris.Errorf("refdata: manifest %s missing dataset name", path)
	}
	if m.Version == "" {
		return nil, eris.Errorf("refdata: manifest %s missing version", path)
	}
	if m.Shapefile == "" {
		return nil, eris.Errorf("refdata: manifest %s missing shapefile", path)
	}
	if m.IDField == "" {
		return nil, eris.Errorf("refdata: manifest %s missing id_field", path)
	}

	return &m, nil
}
