package preset

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a preset file.
type File struct {
	Presets []EntitySchema `yaml:"presets"`
}

// LoadYAML decodes presets from r. Unknown keys are rejected so that typos
// in preset files fail loudly.
func LoadYAML(r io.Reader) ([]EntitySchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	return f.Presets, nil
}

// LoadFS reads every .yaml and .yml file under dir in fsys, in lexical order.
func LoadFS(fsys fs.FS, dir string) ([]EntitySchema, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []EntitySchema
	for _, name := range names {
		f, err := fsys.Open(path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		schemas, err := LoadYAML(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, schemas...)
	}
	return out, nil
}

// LoadDir reads preset files from a directory on disk. A missing directory
// yields no presets.
func LoadDir(dir string) ([]EntitySchema, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadFS(os.DirFS(dir), ".")
}

// RegisterAll registers each schema, stopping at the first error.
func (b *Builder) RegisterAll(schemas []EntitySchema) error {
	for _, s := range schemas {
		if err := b.Register(s); err != nil {
			return err
		}
	}
	return nil
}
