package document

import (
	"context"
	"fmt"
	"sync"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Resolver turns the RIDs of a lazy collection into documents.
type Resolver func(ctx context.Context, rids []models.RID) ([]*Document, error)

// Collection is a lazily loaded relation collection. Its RIDs are known up
// front; the documents are resolved on first access.
type Collection struct {
	mu       sync.Mutex
	rids     []models.RID
	resolver Resolver
	docs     []*Document
	loaded   bool
}

func NewCollection(rids []models.RID, resolver Resolver) *Collection {
	return &Collection{rids: append([]models.RID(nil), rids...), resolver: resolver}
}

// Len never triggers a fetch.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rids)
}

// RIDs never triggers a fetch.
func (c *Collection) RIDs() []models.RID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.RID(nil), c.rids...)
}

func (c *Collection) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// All resolves the collection once and returns its documents.
func (c *Collection) All(ctx context.Context) ([]*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return append([]*Document(nil), c.docs...), nil
	}
	if c.resolver == nil {
		return nil, fmt.Errorf("collection has no resolver")
	}
	docs, err := c.resolver(ctx, c.rids)
	if err != nil {
		return nil, err
	}
	c.docs = docs
	c.loaded = true
	return append([]*Document(nil), docs...), nil
}

// At resolves the collection and returns the i-th document.
func (c *Collection) At(ctx context.Context, i int) (*Document, error) {
	docs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(docs) {
		return nil, fmt.Errorf("collection index %d out of range [0,%d)", i, len(docs))
	}
	return docs[i], nil
}
