package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wallpaper-scraper/pkg/models"
	"wallpaper-scraper/pkg/utils"
)

// WriteYAML saves the run report to path, creating parent directories.
func WriteYAML(path string, report models.RunReport) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating report directory '%s': %w", utils.ErrFilesystem, dir, err)
		}
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing run report '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
