package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer of the mapper
var (
	// Query errors
	ErrInvalidQuery = errors.New("invalid query")
	ErrInvalidRID   = fmt.Errorf("%w: malformed rid", ErrInvalidQuery)

	// Mapping errors
	ErrClassNotFound   = errors.New("class not found")
	ErrAmbiguousClass  = errors.New("ambiguous class mapping")
	ErrMappingMismatch = errors.New("mapping mismatch")
	ErrUnknownField    = errors.New("unknown field")

	// Persistence errors
	ErrVoidDocument = errors.New("void document")
)
