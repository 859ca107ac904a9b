package odm

import (
	"github.com/sixpeteunder/orientdb-odm/document"
)

// OpKind is the kind of a queued write.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type pendingOp struct {
	doc      *document.Document
	kind     OpKind
	snapshot map[string]any
}

// unitOfWork is the ordered queue of writes waiting for Flush. A document
// has at most one entry; later calls collapse into it. Unsaved documents
// removed before they were stored are remembered so that nothing inserts
// them through a link.
type unitOfWork struct {
	ops     []*pendingOp
	removed map[*document.Document]bool
}

func (u *unitOfWork) find(doc *document.Document) (int, *pendingOp) {
	for i, op := range u.ops {
		if op.doc == doc {
			return i, op
		}
	}
	return -1, nil
}

func (u *unitOfWork) persist(doc *document.Document, snapshot map[string]any) {
	delete(u.removed, doc)
	_, op := u.find(doc)
	if op == nil {
		kind := OpInsert
		if doc.HasRID() {
			kind = OpUpdate
		}
		u.ops = append(u.ops, &pendingOp{doc: doc, kind: kind, snapshot: snapshot})
		return
	}
	if op.kind == OpDelete {
		op.kind = OpUpdate
	}
	op.snapshot = snapshot
}

func (u *unitOfWork) remove(doc *document.Document) {
	i, op := u.find(doc)
	if op == nil {
		if doc.HasRID() {
			u.ops = append(u.ops, &pendingOp{doc: doc, kind: OpDelete})
		} else {
			u.cancel(doc)
		}
		return
	}
	switch op.kind {
	case OpInsert:
		u.drop(i)
		u.cancel(doc)
	case OpUpdate:
		op.kind = OpDelete
		op.snapshot = nil
	}
}

func (u *unitOfWork) cancel(doc *document.Document) {
	if u.removed == nil {
		u.removed = make(map[*document.Document]bool)
	}
	u.removed[doc] = true
}

// cancelled reports whether doc was removed before it was ever stored.
func (u *unitOfWork) cancelled(doc *document.Document) bool {
	return u.removed[doc]
}

func (u *unitOfWork) drop(i int) {
	u.ops = append(u.ops[:i], u.ops[i+1:]...)
}

// queuedInsert returns the snapshot of the queued insert of doc, if any.
func (u *unitOfWork) queuedInsert(doc *document.Document) (map[string]any, bool) {
	_, op := u.find(doc)
	if op == nil || op.kind != OpInsert {
		return nil, false
	}
	return op.snapshot, true
}

// forget drops the entry of doc, if any.
func (u *unitOfWork) forget(doc *document.Document) {
	if i, _ := u.find(doc); i >= 0 {
		u.drop(i)
	}
}

func (u *unitOfWork) len() int {
	return len(u.ops)
}

func (u *unitOfWork) clear() {
	u.ops = nil
	u.removed = nil
}
