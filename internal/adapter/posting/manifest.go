// Package posting reads and writes the on-disk posting store: a flat
// little-endian uint32 posting array, the per-tag offset table, and a YAML
// manifest that marks the store as published.
package posting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"tagindex/internal/domain"
)

const (
	FormatVersion = 1

	PostingsFile = "postings.u32"
	OffsetsFile  = "offsets.u32"
	ManifestFile = "manifest.yaml"

	// tmpSuffix marks in-place temporaries written by older builds.
	tmpSuffix = ".tmp"
)

// Artifact describes one persisted uint32 array.
type Artifact struct {
	File   string `yaml:"file" json:"file"`
	Length int    `yaml:"length" json:"length"`
	Bytes  int64  `yaml:"bytes" json:"bytes"`
	BLAKE3 string `yaml:"blake3" json:"blake3"`
}

// Manifest is written last during a build; a directory without one holds
// no published store.
type Manifest struct {
	Version   int       `yaml:"version" json:"version"`
	BuildID   string    `yaml:"build_id" json:"build_id"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	MaxTagID  uint32    `yaml:"max_tag_id" json:"max_tag_id"`
	Tags      int       `yaml:"tags" json:"tags"`
	Posts     int       `yaml:"posts" json:"posts"`
	Postings  Artifact  `yaml:"postings" json:"postings"`
	Offsets   Artifact  `yaml:"offsets" json:"offsets"`
}

// Exists reports whether dir holds a published store, that is a
// manifest. Artifacts without a manifest are leftovers of a failed build
// and do not count.
func Exists(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", ManifestFile, err)
	}
	return false, nil
}

// ReadManifest loads the manifest of the store in dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no published store in %s", domain.ErrInputMissing, dir)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", domain.ErrCorruptStore, err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("%w: manifest version %d, want %d", domain.ErrCorruptStore, m.Version, FormatVersion)
	}
	return &m, nil
}
