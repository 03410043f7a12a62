package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// SettingsDir is a tree of settings files, on disk or embedded:
//
//	defaults.yaml
//	connectors/<connector>[.<label>].yaml
type SettingsDir struct {
	Root  string
	Files fs.FS
}

func (sd SettingsDir) MustFindRootSettingsFile(filename string) (MappingFile, error) {
	name := path.Join(sd.Root, filename)
	b, err := fs.ReadFile(sd.Files, name)
	if err != nil {
		return MappingFile{}, err
	}
	return MappingFileFromBytes(name, b), nil
}

func (sd SettingsDir) MustFindDefaultsSettingsFile() (MappingFile, error) {
	return sd.MustFindRootSettingsFile("defaults.yaml")
}

// MustFindConnectorSettingsFile returns the single file under connectors/ named
// after connector. An optional label may follow the connector name.
func (sd SettingsDir) MustFindConnectorSettingsFile(connector string) (MappingFile, error) {
	var result MappingFile
	dir := path.Join(sd.Root, "connectors")
	entries, err := fs.ReadDir(sd.Files, dir)
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !matchesConnector(entry.Name(), connector) {
			continue
		}
		// multiple matches are not supported - guard against misconfiguration
		if result.Name != "" {
			return MappingFile{}, fmt.Errorf("found multiple settings files for connector: %s in dir: %s", connector, dir)
		}
		name := path.Join(dir, entry.Name())
		b, err := fs.ReadFile(sd.Files, name)
		if err != nil {
			return MappingFile{}, err
		}
		result = MappingFileFromBytes(name, b)
	}
	if result.Name == "" {
		return result, fmt.Errorf("failed to find settings file for connector: %s in dir: %s", connector, dir)
	}
	return result, nil
}

func matchesConnector(filename, connector string) bool {
	name, ok := strings.CutSuffix(filename, ".yaml")
	if !ok {
		if name, ok = strings.CutSuffix(filename, ".yml"); !ok {
			return false
		}
	}
	return name == connector || strings.HasPrefix(name, connector+".")
}

// LoadConnectorSettings reads defaults.yaml, when present, and the connector's
// own file on top of it.
func LoadConnectorSettings(sd SettingsDir, connector string, opts ...ConfigOption) (ConnectorSettings, error) {
	var sources []MappingFile
	defaults, err := sd.MustFindDefaultsSettingsFile()
	switch {
	case err == nil:
		sources = append(sources, defaults)
	case !errors.Is(err, fs.ErrNotExist):
		return ConnectorSettings{}, fmt.Errorf("failed to read default settings %w", err)
	}
	main, err := sd.MustFindConnectorSettingsFile(connector)
	if err != nil {
		return ConnectorSettings{}, err
	}
	sources = append(sources, main)
	return loadSettings(sources, opts...)
}
