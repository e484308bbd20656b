package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lacrosse-relay/internal/location"
)

type locationsFile struct {
	Locations []location.Entry `json:"locations" yaml:"locations"`
}

// LoadLocations reads the device-to-location list from path. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadLocations(path string) ([]location.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var f locationsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	return f.Locations, nil
}
