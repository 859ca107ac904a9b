package odm

import (
	"fmt"

	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
)

// Errors returned by the Manager. They are the models sentinels, repeated
// here so callers need a single import.
var (
	ErrInvalidQuery    = models.ErrInvalidQuery
	ErrInvalidRID      = models.ErrInvalidRID
	ErrClassNotFound   = models.ErrClassNotFound
	ErrAmbiguousClass  = models.ErrAmbiguousClass
	ErrMappingMismatch = models.ErrMappingMismatch
	ErrUnknownField    = models.ErrUnknownField
	ErrVoidDocument    = models.ErrVoidDocument

	// Transport errors
	ErrTransport = protocol.ErrTransport
)

// FlushError reports a flush that stopped at a failing operation. Operations
// applied before it stay applied; the failing one and everything after it
// remain queued.
type FlushError struct {
	Applied int
	Kind    OpKind
	RID     models.RID
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush stopped after %d operations: %s %s: %v", e.Applied, e.Kind, e.RID, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
