package documents

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

//go:embed examples/*.md
var examplesFS embed.FS

// ExampleNames lists the bundled example documents.
func ExampleNames() []string {
	entries, _ := fs.ReadDir(examplesFS, "examples")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// CreateExamples writes the bundled documents into dir. Existing files are
// kept unless overwrite is set. It returns the created and skipped names.
func CreateExamples(dir string, overwrite bool) (created, skipped []string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	for _, name := range ExampleNames() {
		dst := filepath.Join(dir, name)
		if _, statErr := os.Stat(dst); statErr == nil && !overwrite {
			skipped = append(skipped, name)
			continue
		}
		data, err := examplesFS.ReadFile(path.Join("examples", name))
		if err != nil {
			return created, skipped, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return created, skipped, err
		}
		created = append(created, name)
	}
	return created, skipped, nil
}
