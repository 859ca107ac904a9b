package document

import (
	"sync"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// IdentityMap keeps at most one live document per RID. Entries are never
// evicted implicitly.
type IdentityMap struct {
	mu   sync.RWMutex
	docs map[models.RID]*Document
}

func NewIdentityMap() *IdentityMap {
	return &IdentityMap{docs: make(map[models.RID]*Document)}
}

func (m *IdentityMap) Get(rid models.RID) (*Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[rid]
	return doc, ok
}

// LoadOrStore returns the document already registered for the RID of doc,
// or registers doc. loaded is true when an existing document was returned.
func (m *IdentityMap) LoadOrStore(doc *Document) (actual *Document, loaded bool) {
	rid := doc.RID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[rid]; ok {
		return existing, true
	}
	m.docs[rid] = doc
	return doc, false
}

// Add registers doc, replacing any previous entry for its RID.
func (m *IdentityMap) Add(doc *Document) {
	rid := doc.RID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[rid] = doc
}

func (m *IdentityMap) Remove(rid models.RID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, rid)
}

// Contains reports whether doc itself is the registered instance.
func (m *IdentityMap) Contains(doc *Document) bool {
	if doc == nil {
		return false
	}
	existing, ok := m.Get(doc.RID())
	return ok && existing == doc
}

func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *IdentityMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[models.RID]*Document)
}

// Documents returns the registered documents in no particular order.
func (m *IdentityMap) Documents() []*Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out
}
