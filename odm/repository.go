package odm

import (
	"context"
	"fmt"
	"sort"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// Repository reads the documents of one mapped class.
type Repository struct {
	manager *Manager
	meta    *models.ClassMetadata
}

// GetRepository returns a repository for a mapped class.
func (m *Manager) GetRepository(class string) (*Repository, error) {
	meta, err := m.mapper.ClassMetadata(class)
	if err != nil {
		return nil, err
	}
	return &Repository{manager: m, meta: meta}, nil
}

func (r *Repository) Class() *models.ClassMetadata {
	return r.meta
}

// FindAll returns every document of the class.
func (r *Repository) FindAll(ctx context.Context) ([]*document.Document, error) {
	return r.run(ctx, query.Select(r.meta.Schema))
}

// Find returns the document at rid, or nil when it does not exist or
// belongs to another class.
func (r *Repository) Find(ctx context.Context, rid string) (*document.Document, error) {
	doc, err := r.manager.Find(ctx, rid)
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.Class() != r.meta.Name {
		return nil, nil
	}
	return doc, nil
}

// FindBy returns the documents whose fields equal every criterion. Keys are
// local field names.
func (r *Repository) FindBy(ctx context.Context, criteria map[string]any) ([]*document.Document, error) {
	q, err := r.selectBy(criteria)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, q)
}

// FindOneBy is FindBy limited to one document. It returns nil when nothing
// matches.
func (r *Repository) FindOneBy(ctx context.Context, criteria map[string]any) (*document.Document, error) {
	q, err := r.selectBy(criteria)
	if err != nil {
		return nil, err
	}
	docs, err := r.run(ctx, q.Limit(1))
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Count returns the number of records of the class. It selects the records
// and counts them; they are not hydrated into documents.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	res, err := r.manager.adapter.Send(ctx, protocol.Command(query.Select(r.meta.Schema)))
	if err != nil {
		return 0, err
	}
	return int64(len(res.Records)), nil
}

func (r *Repository) selectBy(criteria map[string]any) (*query.SelectQuery, error) {
	stored, err := r.manager.mapper.Dehydrate(r.meta, criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	fields := make([]string, 0, len(stored))
	for f := range stored {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	q := query.Select(r.meta.Schema)
	for _, f := range fields {
		q.Where(f, query.OpEq, stored[f])
	}
	return q, nil
}

func (r *Repository) run(ctx context.Context, q *query.SelectQuery) ([]*document.Document, error) {
	res, err := r.manager.Execute(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}
