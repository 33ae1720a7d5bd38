package mockserver

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

//go:embed specs/*.yml
var demoSpecs embed.FS

// DemoSpecs returns the job specs bundled with the mock server.
func DemoSpecs() ([]models.JobSpec, error) {
	sub, err := fs.Sub(demoSpecs, "specs")
	if err != nil {
		return nil, err
	}
	return LoadSpecs(sub)
}

// LoadSpecs reads every .json, .yaml and .yml file under fsys as a job spec.
// Specs are returned sorted by id.
func LoadSpecs(fsys fs.FS) ([]models.JobSpec, error) {
	var specs []models.JobSpec
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isSpecFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		spec, err := models.DecodeJobSpec(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prev, ok := seen[spec.ID]; ok {
			return fmt.Errorf("duplicate job spec %q in %s (already defined in %s)", spec.ID, path, prev)
		}
		seen[spec.ID] = path
		specs = append(specs, spec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, nil
}

func isSpecFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
