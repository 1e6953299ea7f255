package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Settings is the robot-side config an operator may change remotely.
type Settings struct {
	Speed        float64       `yaml:"speed" json:"speed"`
	Acceleration float64       `yaml:"acceleration" json:"acceleration"`
	GripperForce float64       `yaml:"gripperForce" json:"gripperForce"`
	Home         []float64     `yaml:"home" json:"home"`
	ReportRate   time.Duration `yaml:"reportRate" json:"reportRate"`
}

// DefaultSettings are used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		Speed:        50,
		Acceleration: 50,
		GripperForce: 20,
		Home:         []float64{0, 0, 0, 0},
		ReportRate:   200 * time.Millisecond,
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings as YAML, replacing path atomically.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Apply returns a copy of s with one field set from an operator value.
// Keys use the JSON names; values are converted loosely ("75" sets a
// float, "1s" sets a duration). Unknown keys are an error.
func (s Settings) Apply(key string, value interface{}) (Settings, error) {
	out := s
	out.Home = append([]float64(nil), s.Home...)
	if key == "home" {
		out.Home = nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return s, err
	}
	if err := decoder.Decode(map[string]interface{}{key: value}); err != nil {
		return s, fmt.Errorf("apply %s: %w", key, err)
	}
	return out, nil
}
