package models

// FieldType is the declared storage type of a mapped field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeEmbedded FieldType = "embedded"
	TypeLink     FieldType = "link"
	TypeLinkList FieldType = "linklist"
	TypeLinkSet  FieldType = "linkset"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDatetime,
		TypeEmbedded, TypeLink, TypeLinkList, TypeLinkSet:
		return true
	}
	return false
}

// Cardinality of a relation field.
type Cardinality int

const (
	CardinalityNone Cardinality = iota
	CardinalitySingle
	CardinalityCollection
)

// FieldDescriptor declares one mapped attribute.
type FieldDescriptor struct {
	Name     string    `yaml:"name" validate:"required"`
	Remote   string    `yaml:"remote"`
	Type     FieldType `yaml:"type" validate:"required"`
	Target   string    `yaml:"target"`
	Validate string    `yaml:"validate"`
	Default  any       `yaml:"default"`
}

// RemoteName returns the stored field name.
func (f FieldDescriptor) RemoteName() string {
	if f.Remote != "" {
		return f.Remote
	}
	return f.Name
}

func (f FieldDescriptor) Cardinality() Cardinality {
	switch f.Type {
	case TypeLink:
		return CardinalitySingle
	case TypeLinkList, TypeLinkSet:
		return CardinalityCollection
	default:
		return CardinalityNone
	}
}

// IsRelation reports whether the field links to other records.
func (f FieldDescriptor) IsRelation() bool {
	return f.Cardinality() != CardinalityNone
}

// ClassMetadata describes a mapped class. It is built once by the mapper and
// shared read-only afterwards.
type ClassMetadata struct {
	Name      string
	Schema    string
	Namespace string
	Fields    []FieldDescriptor

	byLocal  map[string]int
	byRemote map[string]int
}

// NewClassMetadata builds metadata and its lookup tables. An empty schema
// defaults to the unqualified class name.
func NewClassMetadata(name, schema string, fields ...FieldDescriptor) *ClassMetadata {
	if schema == "" {
		schema = name
	}
	m := &ClassMetadata{Name: name, Schema: schema, Fields: fields}
	m.Reindex()
	return m
}

// Reindex rebuilds the name lookup tables after Fields changed.
func (m *ClassMetadata) Reindex() {
	m.byLocal = make(map[string]int, len(m.Fields))
	m.byRemote = make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		m.byLocal[f.Name] = i
		m.byRemote[f.RemoteName()] = i
	}
}

// Field looks up a descriptor by local name.
func (m *ClassMetadata) Field(name string) (FieldDescriptor, bool) {
	if m.byLocal == nil {
		m.Reindex()
	}
	i, ok := m.byLocal[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return m.Fields[i], true
}

// RemoteField looks up a descriptor by stored name.
func (m *ClassMetadata) RemoteField(remote string) (FieldDescriptor, bool) {
	if m.byRemote == nil {
		m.Reindex()
	}
	i, ok := m.byRemote[remote]
	if !ok {
		return FieldDescriptor{}, false
	}
	return m.Fields[i], true
}

// Relations returns the relation fields in declaration order.
func (m *ClassMetadata) Relations() []FieldDescriptor {
	var out []FieldDescriptor
	for _, f := range m.Fields {
		if f.IsRelation() {
			out = append(out, f)
		}
	}
	return out
}

// DatetimeLayout is the storage format of datetime fields.
const DatetimeLayout = "2006-01-02 15:04:05"
