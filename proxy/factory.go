// Package proxy creates lazy stand-ins for mapped classes while keeping one
// live instance per RID.
package proxy

import (
	"fmt"
	"sync"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/models"
)

// Template is the prepared shape of one mapped class.
type Template struct {
	Meta      *models.ClassMetadata
	Order     []string
	Relations map[string]models.Cardinality
	defaults  map[string]any
}

func newTemplate(meta *models.ClassMetadata) *Template {
	t := &Template{
		Meta:      meta,
		Order:     make([]string, 0, len(meta.Fields)),
		Relations: make(map[string]models.Cardinality),
		defaults:  make(map[string]any),
	}
	for _, f := range meta.Fields {
		t.Order = append(t.Order, f.Name)
		if f.IsRelation() {
			t.Relations[f.Name] = f.Cardinality()
		}
		if f.Default != nil {
			t.defaults[f.Name] = f.Default
		}
	}
	return t
}

// Defaults returns a fresh copy of the declared default values.
func (t *Template) Defaults() map[string]any {
	return models.CloneFields(t.defaults)
}

// Factory builds proxies bound to one identity map.
type Factory struct {
	mapper   *mapper.Mapper
	identity *document.IdentityMap
	loader   document.Loader

	mu        sync.Mutex
	templates map[string]*Template
}

func NewFactory(m *mapper.Mapper, identity *document.IdentityMap, loader document.Loader) *Factory {
	return &Factory{
		mapper:    m,
		identity:  identity,
		loader:    loader,
		templates: make(map[string]*Template),
	}
}

// GenerateProxyClasses prepares templates ahead of time. Every relation
// target must name a registered class.
func (f *Factory) GenerateProxyClasses(metas []*models.ClassMetadata) error {
	prepared := make([]*Template, 0, len(metas))
	for _, meta := range metas {
		for _, rel := range meta.Relations() {
			if rel.Target == "" {
				continue
			}
			if _, err := f.mapper.ClassMetadata(rel.Target); err != nil {
				return fmt.Errorf("proxy for %s.%s: %w", meta.Name, rel.Name, err)
			}
		}
		prepared = append(prepared, newTemplate(meta))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range prepared {
		f.templates[t.Meta.Name] = t
	}
	return nil
}

// Prepared reports whether a template exists for class.
func (f *Factory) Prepared(class string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.templates[class]
	return ok
}

// Template returns the template of class, preparing it on first use.
func (f *Factory) Template(class string) (*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.templates[class]; ok {
		return t, nil
	}
	meta, err := f.mapper.ClassMetadata(class)
	if err != nil {
		return nil, err
	}
	t := newTemplate(meta)
	f.templates[class] = t
	return t, nil
}

// CreateProxy returns the live instance for rid if one exists, initialized
// or not. Otherwise it registers and returns a new uninitialized proxy. An
// empty class defers class resolution to the first load.
func (f *Factory) CreateProxy(class string, rid models.RID) (*document.Document, error) {
	if rid.IsTransient() {
		return nil, fmt.Errorf("%w: proxy for transient rid %s", models.ErrInvalidQuery, rid)
	}
	if doc, ok := f.identity.Get(rid); ok {
		return doc, nil
	}

	var meta *models.ClassMetadata
	if class != "" {
		t, err := f.Template(class)
		if err != nil {
			return nil, err
		}
		meta = t.Meta
	}
	doc, _ := f.identity.LoadOrStore(document.NewProxy(meta, rid, f.loader))
	return doc, nil
}

// NewDocument returns a transient document of class carrying its defaults.
func (f *Factory) NewDocument(class string) (*document.Document, error) {
	t, err := f.Template(class)
	if err != nil {
		return nil, err
	}
	return document.New(t.Meta, t.Defaults()), nil
}
