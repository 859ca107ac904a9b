package odm

import (
	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// Result is the outcome of Execute. Which fields are set depends on Kind:
// selects and inserts fill Documents, counting updates and deletes fill
// Count, everything else reports Success.
type Result struct {
	Kind      query.Kind
	Documents []*document.Document
	Count     int64
	Success   bool
}

// First returns the first document or nil.
func (r *Result) First() *document.Document {
	if r == nil || len(r.Documents) == 0 {
		return nil
	}
	return r.Documents[0]
}
