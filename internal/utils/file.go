// Package utils holds small file helpers shared by the command and the
// configuration reload path.
package utils

import (
	"fmt"
	"os"

	"github.com/fjacquet/rq_exporter/internal/models"
	"gopkg.in/yaml.v2"
)

// FileExists checks if the given file exists.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// ReadFile decodes the YAML configuration file at filepath into cfg.
// Fields absent from the file keep the values already set in cfg.
func ReadFile(cfg *models.Config, filepath string) error {
	f, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", filepath, err)
	}
	defer func() { _ = f.Close() }()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", filepath, err)
	}

	return nil
}
