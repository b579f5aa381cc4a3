package extensions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Metadata file names, in lookup order.
const (
	MetadataJSON = "metadata.json"
	MetadataYAML = "metadata.yaml"
)

var errNoMetadata = errors.New("no metadata file")

// loadFromDir loads every extension directory under dir.
func (m *Manager) loadFromDir(dir searchDir) error {
	entries, err := afero.ReadDir(m.fs, dir.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		extDir := filepath.Join(dir.path, entry.Name())
		if err := m.loadExtension(extDir, dir.typ); err != nil {
			if errors.Is(err, errNoMetadata) {
				continue
			}
			m.logger.Warn().Err(err).Str("dir", extDir).Msg("Failed to load extension")
		}
	}

	return nil
}

// loadExtension loads a single extension from a directory.
func (m *Manager) loadExtension(dir string, defaultType Type) error {
	meta, err := ReadMetadata(m.fs, dir)
	if err != nil {
		return err
	}
	meta.Path = dir
	if meta.Type == nil {
		t := string(defaultType)
		meta.Type = &t
	}

	d, err := NewDescriptor(meta, WithFs(m.fs), WithDisplayer(m.display))
	if err != nil {
		return err
	}

	factory, ok := m.factories[d.Entrypoint()]
	if !ok {
		return &Error{Extension: d.Name(), Reason: d.Entrypoint(), Err: ErrEntrypointNotFound}
	}

	return m.register(factory(d))
}

// ReadMetadata reads metadata.json, or metadata.yaml when the former is absent, from dir.
func ReadMetadata(fs afero.Fs, dir string) (Metadata, error) {
	var meta Metadata

	data, err := afero.ReadFile(fs, filepath.Join(dir, MetadataJSON))
	if err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			return meta, fmt.Errorf("parse %s: %w", MetadataJSON, err)
		}
		return meta, nil
	}
	if !os.IsNotExist(err) {
		return meta, err
	}

	data, err = afero.ReadFile(fs, filepath.Join(dir, MetadataYAML))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, fmt.Errorf("%w in %s", errNoMetadata, dir)
		}
		return meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", MetadataYAML, err)
	}
	return meta, nil
}

// UnmarshalJSON decodes metadata, accepting a number or boolean for version
// ("version": 1.0) and keeping its literal text.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	aux := struct {
		*plain
		Version *scalar `json:"version,omitempty"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Version != nil {
		v := string(*aux.Version)
		m.Version = &v
	}
	return nil
}

// scalar is a JSON string, number or boolean held as text.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = scalar(str)
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = scalar(data)
		return nil
	}
	return fmt.Errorf("expected a string, number or boolean, got %s", data)
}
