// Package mapper translates between stored records and mapped classes.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// ErrInvalidDescriptor is returned for malformed class declarations.
var ErrInvalidDescriptor = errors.New("invalid class descriptor")

// Mapper is the registration table of mapped classes. It is safe for
// concurrent use once populated.
type Mapper struct {
	mu          sync.RWMutex
	classes     map[string]*models.ClassMetadata
	bySchema    map[string][]*models.ClassMetadata
	directories map[string]string
	tolerant    bool
	logger      *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMismatchTolerance starts the mapper in tolerant mode.
func WithMismatchTolerance() Option {
	return func(m *Mapper) {
		m.tolerant = true
	}
}

func New(opts ...Option) *Mapper {
	m := &Mapper{
		classes:     make(map[string]*models.ClassMetadata),
		bySchema:    make(map[string][]*models.ClassMetadata),
		directories: make(map[string]string),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a class. Local names must be unique.
func (m *Mapper) Register(meta *models.ClassMetadata) error {
	if err := checkMetadata(meta); err != nil {
		return err
	}
	meta.Reindex()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.classes[meta.Name]; exists {
		return fmt.Errorf("%w: class %s registered twice", ErrInvalidDescriptor, meta.Name)
	}
	m.classes[meta.Name] = meta
	m.bySchema[meta.Schema] = append(m.bySchema[meta.Schema], meta)
	m.logger.Debug("class registered", "class", meta.Name, "schema", meta.Schema, "fields", len(meta.Fields))
	return nil
}

// MustRegister panics if a class cannot be registered.
func (m *Mapper) MustRegister(metas ...*models.ClassMetadata) {
	for _, meta := range metas {
		if err := m.Register(meta); err != nil {
			panic(err)
		}
	}
}

func checkMetadata(meta *models.ClassMetadata) error {
	if meta == nil || meta.Name == "" {
		return fmt.Errorf("%w: class without name", ErrInvalidDescriptor)
	}
	if meta.Schema == "" {
		meta.Schema = meta.Name
	}
	seen := make(map[string]bool, len(meta.Fields))
	remote := make(map[string]bool, len(meta.Fields))
	for _, f := range meta.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s has a field without name", ErrInvalidDescriptor, meta.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: %s.%s has unknown type %q", ErrInvalidDescriptor, meta.Name, f.Name, f.Type)
		}
		if seen[f.Name] || remote[f.RemoteName()] {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidDescriptor, meta.Name, f.Name)
		}
		seen[f.Name] = true
		remote[f.RemoteName()] = true
	}
	return nil
}

// ClassMetadata looks a class up by local name.
func (m *Mapper) ClassMetadata(name string) (*models.ClassMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrClassNotFound, name)
	}
	return meta, nil
}

// Classes returns every registered class ordered by name.
func (m *Mapper) Classes() []*models.ClassMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ClassMetadata, 0, len(m.classes))
	for _, meta := range m.classes {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveSchema finds the single class mapped to a stored class.
func (m *Mapper) ResolveSchema(schema string) (*models.ClassMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidates := m.bySchema[schema]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no class mapped to %q", models.ErrClassNotFound, schema)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %q mapped by %v", models.ErrAmbiguousClass, schema, names)
	}
}

func (m *Mapper) EnableMismatchesTolerance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tolerant = true
}

func (m *Mapper) DisableMismatchesTolerance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tolerant = false
}

func (m *Mapper) IsTolerant() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tolerant
}

// DocumentDirectories returns the configured directory to namespace mapping.
func (m *Mapper) DocumentDirectories() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.directories))
	for k, v := range m.directories {
		out[k] = v
	}
	return out
}
