package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wallpaper-scraper/pkg/utils"
)

// Load reads a YAML config file. A missing file is not an error: the zero
// config is returned and Validate fills in the defaults.
func Load(path string) (*AppConfig, bool, error) {
	var cfg AppConfig
	if path == "" {
		return &cfg, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("%w: read config: %w", utils.ErrFilesystem, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("%w: YAML config %s: %w", utils.ErrParsing, path, err)
	}
	return &cfg, true, nil
}
