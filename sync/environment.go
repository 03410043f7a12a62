package sync

import (
	"fmt"
	"os"
)

// DefaultSettingsEnvVar holds the JSON object used to expand settings files.
const DefaultSettingsEnvVar = "CRMSYNC"

// configOptions holds optional configuration for LoadSettings.
type configOptions struct {
	envVar      string
	unmarshaler SettingsUnmarshaler
	extra       []MappingFile
}

// ConfigOption is a functional option for configuring LoadSettings.
type ConfigOption func(*configOptions)

// ConfigWithEnvVar expands ${VAR} from the JSON object in the named environment
// variable instead of the process environment.
func ConfigWithEnvVar(name string) ConfigOption {
	return func(o *configOptions) {
		o.envVar = name
	}
}

// ConfigWithOverrides applies further settings files on top of the main one.
func ConfigWithOverrides(files ...MappingFile) ConfigOption {
	return func(o *configOptions) {
		o.extra = append(o.extra, files...)
	}
}

func ConfigWithUnmarshaler(u SettingsUnmarshaler) ConfigOption {
	return func(o *configOptions) {
		o.unmarshaler = u
	}
}

// LoadSettings reads the settings file at path and normalizes it.
func LoadSettings(path string, opts ...ConfigOption) (ConnectorSettings, error) {
	main, err := MappingFileFromPath(path)
	if err != nil {
		return ConnectorSettings{}, fmt.Errorf("failed to read settings file %w", err)
	}
	return loadSettings([]MappingFile{main}, opts...)
}

func loadSettings(sources []MappingFile, opts ...ConfigOption) (ConnectorSettings, error) {
	options := configOptions{unmarshaler: YAMLSettingsUnmarshaler{}}
	for _, opt := range opts {
		opt(&options)
	}

	var compev CompositeEnvVar = OSEnv{}
	if options.envVar != "" {
		if _, ok := os.LookupEnv(options.envVar); !ok {
			return ConnectorSettings{}, fmt.Errorf("environment variable %s is not set", options.envVar)
		}
		compev = JSONCompositeEnvVar{Parent: options.envVar}
	}

	raw, err := options.unmarshaler.Unmarshal(compev, append(sources, options.extra...)...)
	if err != nil {
		return ConnectorSettings{}, fmt.Errorf("failed to load settings %w", err)
	}
	return NormalizeSettings(raw), nil
}
