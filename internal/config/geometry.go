package config

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"gopkg.in/yaml.v3"
)

// LoadGeometry reads an arm geometry from a YAML file. Fields missing from
// the file keep the bench defaults; an empty path returns the defaults.
func LoadGeometry(path string) (kinematics.Config, error) {
	g := kinematics.DefaultConfig()
	if path == "" {
		return g, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("read geometry: %w", err)
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("parse geometry %s: %w", path, err)
	}

	switch g.InverseType {
	case "", kinematics.InverseBasic, kinematics.InverseUR:
	default:
		return g, fmt.Errorf("unknown inverse type %q", g.InverseType)
	}
	return g, nil
}

// SaveGeometry writes g as YAML.
func SaveGeometry(path string, g kinematics.Config) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
