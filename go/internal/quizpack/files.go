package quizpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizhall/go/internal/models"
)

// Files reads packages from <dir>/<id>.yaml.
type Files struct {
	dir string
}

func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

func (f *Files) Get(_ context.Context, id string) (*models.Package, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("%w: invalid id %q", ErrPackageNotFound, id)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		raw, err := os.ReadFile(filepath.Join(f.dir, id+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read package %s: %w", id, err)
		}
		return Decode(id, raw)
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
}

// IDs lists the packages available in the directory.
func (f *Files) IDs() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			ids = append(ids, strings.TrimSuffix(name, ext))
		}
	}
	return ids, nil
}

// Decode parses a YAML package document and checks it is playable.
func Decode(id string, raw []byte) (*models.Package, error) {
	var pkg models.Package
	if err := yaml.Unmarshal(raw, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package %s: %w", id, err)
	}
	if pkg.ID == "" {
		pkg.ID = id
	}
	pkg.Normalize()
	if err := pkg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid package %s: %w", id, err)
	}
	return &pkg, nil
}
