// Package protocol defines the boundary between the mapper and a document
// store backend.
package protocol

import (
	"context"
	"errors"

	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// ErrTransport marks connection and protocol failures. Adapters may retry
// them; the layers above never do.
var ErrTransport = errors.New("transport error")

// Op identifies the request type.
type Op int

const (
	// OpLoad reads one record, honoring FetchPlan.
	OpLoad Op = iota
	// OpLoadMany reads the records of RIDs. Absent records are omitted.
	OpLoadMany
	// OpCreate stores Record and returns it with its assigned RID.
	OpCreate
	// OpUpdate replaces the fields of Record.
	OpUpdate
	// OpDelete removes the record at RID.
	OpDelete
	// OpCommand runs Command.
	OpCommand
)

func (o Op) String() string {
	switch o {
	case OpLoad:
		return "load"
	case OpLoadMany:
		return "load-many"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Request is one call to the backend.
type Request struct {
	Op        Op
	RID       models.RID
	RIDs      []models.RID
	FetchPlan string
	Record    *models.Record
	Command   query.Command
}

// Adapter sends requests to a document store.
//
// Results by op:
//   - OpLoad, OpLoadMany: ResultRecords, empty when nothing was found
//   - OpCreate: ResultRecords holding the stored record
//   - OpUpdate: ResultRecords holding the record with its new version
//   - OpDelete: ResultBoolean, false when the record did not exist
//   - OpCommand: depends on the command kind
//
// Failures wrap ErrTransport or models.ErrInvalidQuery.
type Adapter interface {
	Send(ctx context.Context, req *Request) (*models.Result, error)
}

// Closer is implemented by adapters holding resources.
type Closer interface {
	Close() error
}

// Factory creates a connected adapter.
type Factory func(ctx context.Context) (Adapter, error)

func Load(rid models.RID, fetchPlan string) *Request {
	return &Request{Op: OpLoad, RID: rid, FetchPlan: fetchPlan}
}

func LoadMany(rids []models.RID) *Request {
	return &Request{Op: OpLoadMany, RIDs: rids}
}

func Create(rec *models.Record) *Request {
	return &Request{Op: OpCreate, Record: rec}
}

func Update(rec *models.Record) *Request {
	return &Request{Op: OpUpdate, RID: rec.RID, Record: rec}
}

func Delete(rid models.RID) *Request {
	return &Request{Op: OpDelete, RID: rid}
}

func Command(cmd query.Command) *Request {
	return &Request{Op: OpCommand, Command: cmd}
}
