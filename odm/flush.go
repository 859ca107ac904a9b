package odm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
)

// Persist queues doc for insertion, or for an update when it is already
// stored. The field values are captured now; nothing is sent until Flush.
// Persisting an uninitialized proxy does nothing since it holds no changes.
func (m *Manager) Persist(doc *document.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrVoidDocument)
	}
	if doc.Status() == document.StatusRemoved {
		return fmt.Errorf("%w: %s was removed", ErrVoidDocument, doc)
	}
	if !doc.IsInitialized() {
		return nil
	}
	if doc.Missing() || doc.Meta() == nil {
		return fmt.Errorf("%w: %s has no stored record or mapped class", ErrVoidDocument, doc)
	}
	m.uow.persist(doc, doc.Snapshot())
	return nil
}

// Remove queues doc for deletion. A queued insert of doc is cancelled
// instead and doc never gets a RID.
func (m *Manager) Remove(doc *document.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrVoidDocument)
	}
	m.uow.remove(doc)
	return nil
}

// Flush applies the queued writes in order. It stops at the first failure
// and returns a *FlushError; writes applied before it are not rolled back.
func (m *Manager) Flush(ctx context.Context) error {
	if m.uow.len() == 0 {
		return nil
	}
	m.logger.Debug("flush started", "pending", m.uow.len())

	applied := 0
	for m.uow.len() > 0 {
		op := m.uow.ops[0]
		cascaded, err := m.apply(ctx, op)
		applied += cascaded
		if err != nil {
			m.logger.Warn("flush failed",
				"kind", op.kind.String(),
				"rid", op.doc.RID().String(),
				"applied", applied,
				"remaining", m.uow.len(),
				"error", err,
			)
			return &FlushError{Applied: applied, Kind: op.kind, RID: op.doc.RID(), Err: err}
		}
		m.uow.forget(op.doc)
		applied++
	}

	m.logger.Debug("flush finished", "applied", applied)
	return nil
}

// apply runs one queued write. It returns the number of related inserts
// that were cascaded before it, even when it fails.
func (m *Manager) apply(ctx context.Context, op *pendingOp) (int, error) {
	switch op.kind {
	case OpInsert:
		return m.insert(ctx, op.doc, op.snapshot, map[*document.Document]bool{})
	case OpUpdate:
		return m.update(ctx, op.doc, op.snapshot)
	case OpDelete:
		return 0, m.delete(ctx, op.doc)
	default:
		return 0, fmt.Errorf("unknown operation %d", op.kind)
	}
}

func (m *Manager) check(meta *models.ClassMetadata, snapshot map[string]any) error {
	if meta == nil {
		return fmt.Errorf("%w: document has no mapped class", ErrVoidDocument)
	}
	if len(snapshot) == 0 {
		return fmt.Errorf("%w: %s document has no fields", ErrVoidDocument, meta.Name)
	}
	if err := m.validator.ValidateDocument(meta, snapshot); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrVoidDocument, meta.Name, err)
	}
	return nil
}

func (m *Manager) insert(ctx context.Context, doc *document.Document, snapshot map[string]any, visiting map[*document.Document]bool) (int, error) {
	if visiting[doc] {
		return 0, fmt.Errorf("%w: unsaved documents reference each other through %s", ErrVoidDocument, doc)
	}
	visiting[doc] = true

	meta := doc.Meta()
	if err := m.check(meta, snapshot); err != nil {
		return 0, err
	}
	cascaded, err := m.cascade(ctx, meta, snapshot, visiting)
	if err != nil {
		return cascaded, err
	}
	fields, err := m.mapper.Dehydrate(meta, withDeclared(meta, snapshot))
	if err != nil {
		return cascaded, err
	}

	res, err := m.adapter.Send(ctx, protocol.Create(&models.Record{
		RID:    models.TransientRID,
		Class:  meta.Schema,
		Fields: fields,
	}))
	if err != nil {
		return cascaded, err
	}
	rec := res.First()
	if rec == nil || rec.RID.IsTransient() {
		return cascaded, fmt.Errorf("%w: create of %s returned no record", ErrTransport, meta.Name)
	}

	doc.AssignRID(rec.RID, rec.Version)
	m.identity.Add(doc)
	m.remember(rec.RID, fields)
	m.logger.Debug("operation applied", "kind", OpInsert.String(), "class", meta.Name, "rid", rec.RID.String())
	return cascaded, nil
}

// withDeclared returns a copy of snapshot holding every declared field,
// unset ones as nil, so stored records always carry the full class shape.
func withDeclared(meta *models.ClassMetadata, snapshot map[string]any) map[string]any {
	out := make(map[string]any, len(meta.Fields))
	for k, v := range snapshot {
		out[k] = v
	}
	for _, fd := range meta.Fields {
		if _, ok := out[fd.Name]; !ok {
			out[fd.Name] = nil
		}
	}
	return out
}

// cascade inserts the unsaved documents referenced by snapshot. A related
// document with its own queued insert is stored with that snapshot and
// leaves the queue.
func (m *Manager) cascade(ctx context.Context, meta *models.ClassMetadata, snapshot map[string]any, visiting map[*document.Document]bool) (int, error) {
	n := 0
	for _, dep := range mapper.Unsaved(meta, snapshot) {
		if dep.HasRID() {
			continue
		}
		if m.uow.cancelled(dep) {
			return n, fmt.Errorf("%w: %s links to %s, which was removed before it was stored", ErrVoidDocument, meta.Name, dep)
		}
		depSnapshot, queued := m.uow.queuedInsert(dep)
		if !queued {
			depSnapshot = dep.Snapshot()
		}
		c, err := m.insert(ctx, dep, depSnapshot, visiting)
		n += c
		if err != nil {
			return n, err
		}
		if queued {
			m.uow.forget(dep)
		}
		n++
	}
	return n, nil
}

func (m *Manager) update(ctx context.Context, doc *document.Document, snapshot map[string]any) (int, error) {
	meta := doc.Meta()
	rid := doc.RID()
	if err := m.check(meta, snapshot); err != nil {
		return 0, err
	}
	cascaded, err := m.cascade(ctx, meta, snapshot, map[*document.Document]bool{doc: true})
	if err != nil {
		return cascaded, err
	}
	fields, err := m.mapper.Dehydrate(meta, withDeclared(meta, snapshot))
	if err != nil {
		return cascaded, err
	}

	if last, ok := m.lastSynced(rid); ok && sameState(last, fields) {
		m.logger.Debug("update skipped", "class", meta.Name, "rid", rid.String())
		m.attach(doc)
		return cascaded, nil
	}

	res, err := m.adapter.Send(ctx, protocol.Update(&models.Record{
		RID:     rid,
		Class:   meta.Schema,
		Version: doc.Version(),
		Fields:  fields,
	}))
	if err != nil {
		return cascaded, err
	}
	rec := res.First()
	if rec == nil {
		return cascaded, fmt.Errorf("%w: %s no longer exists", ErrVoidDocument, rid)
	}

	doc.SetVersion(rec.Version)
	m.attach(doc)
	m.remember(rid, fields)
	m.logger.Debug("operation applied", "kind", OpUpdate.String(), "class", meta.Name, "rid", rid.String(), "version", rec.Version)
	return cascaded, nil
}

// sameState compares stored field maps, an absent field reading as null.
func sameState(a, b map[string]any) bool {
	for k, v := range a {
		if !reflect.DeepEqual(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && v != nil {
			return false
		}
	}
	return true
}

// attach registers a persisted detached document again.
func (m *Manager) attach(doc *document.Document) {
	if doc.Status() == document.StatusDetached {
		m.identity.Add(doc)
		doc.MarkManaged()
	}
}

func (m *Manager) delete(ctx context.Context, doc *document.Document) error {
	rid := doc.RID()
	res, err := m.adapter.Send(ctx, protocol.Delete(rid))
	if err != nil {
		return err
	}
	if !res.Bool {
		m.logger.Debug("record already absent", "rid", rid.String())
	}
	if m.identity.Contains(doc) {
		m.identity.Remove(rid)
	}
	m.forgetSynced(rid)
	doc.MarkRemoved()
	m.logger.Debug("operation applied", "kind", OpDelete.String(), "class", doc.Class(), "rid", rid.String())
	return nil
}
