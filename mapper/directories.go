package mapper

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// ClassYAML is one class descriptor document. A file may hold several
// documents separated by "---".
type ClassYAML struct {
	Class  string      `yaml:"class"`
	Schema string      `yaml:"schema,omitempty"`
	Fields []FieldYAML `yaml:"fields"`
}

// FieldYAML is one declared attribute.
type FieldYAML struct {
	Name     string `yaml:"name"`
	Remote   string `yaml:"remote,omitempty"`
	Type     string `yaml:"type"`
	Target   string `yaml:"target,omitempty"`
	Validate string `yaml:"validate,omitempty"`
	Default  any    `yaml:"default,omitempty"`
}

// SetDocumentDirectories loads every *.yaml and *.yml descriptor below each
// path and registers the classes under the path's namespace.
func (m *Mapper) SetDocumentDirectories(dirs map[string]string) error {
	paths := make([]string, 0, len(dirs))
	for p := range dirs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, dir := range paths {
		namespace := dirs[dir]
		count := 0
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			metas, err := LoadYAML(path, namespace)
			if err != nil {
				return err
			}
			for _, meta := range metas {
				if err := m.Register(meta); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				count++
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load document directory %s: %w", dir, err)
		}

		m.mu.Lock()
		m.directories[dir] = namespace
		m.mu.Unlock()
		m.logger.Info("document directory loaded", "path", dir, "namespace", namespace, "classes", count)
	}
	return nil
}

// LoadYAML reads the class descriptors of one file.
func LoadYAML(path, namespace string) ([]*models.ClassMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor: %w", err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dec := yaml.NewDecoder(f)

	var metas []*models.ClassMetadata
	for {
		var doc ClassYAML
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, path, err)
		}
		if doc.Class == "" {
			doc.Class = base
		}
		meta, err := doc.toMetadata(namespace)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (c ClassYAML) toMetadata(namespace string) (*models.ClassMetadata, error) {
	schema := c.Schema
	if schema == "" {
		schema = c.Class
	}
	fields := make([]models.FieldDescriptor, 0, len(c.Fields))
	for _, f := range c.Fields {
		typ := models.FieldType(strings.ToLower(f.Type))
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: %s.%s has unknown type %q", ErrInvalidDescriptor, c.Class, f.Name, f.Type)
		}
		target := f.Target
		if target != "" && namespace != "" && !strings.Contains(target, ".") {
			target = namespace + "." + target
		}
		fields = append(fields, models.FieldDescriptor{
			Name:     f.Name,
			Remote:   f.Remote,
			Type:     typ,
			Target:   target,
			Validate: f.Validate,
			Default:  f.Default,
		})
	}
	meta := models.NewClassMetadata(qualify(namespace, c.Class), schema, fields...)
	meta.Namespace = namespace
	return meta, nil
}

func qualify(namespace, class string) string {
	if namespace == "" {
		return class
	}
	return namespace + "." + class
}
