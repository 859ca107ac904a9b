package odm

import (
	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/fetchplan"
	"github.com/sixpeteunder/orientdb-odm/models"
)

// materializer turns the records of one result into live documents.
// Linked records the result prefetched become initialized documents, the
// others become proxies. With refresh set, initialized documents without
// local changes take the fetched data in place.
type materializer struct {
	m        *Manager
	res      *models.Result
	visiting map[models.RID]*document.Document
	refresh  bool
}

func (m *Manager) newMaterializer(res *models.Result) *materializer {
	return &materializer{m: m, res: res, visiting: make(map[models.RID]*document.Document)}
}

// cached returns the document for rid if it is being built or is already
// initialized in the identity map.
func (mt *materializer) cached(rid models.RID) (*document.Document, bool) {
	if doc, ok := mt.visiting[rid]; ok {
		return doc, true
	}
	if doc, ok := mt.m.identity.Get(rid); ok && doc.IsInitialized() {
		return doc, true
	}
	return nil, false
}

func (mt *materializer) record(rec *models.Record, plan fetchplan.Plan) (*document.Document, error) {
	if doc, ok := mt.visiting[rec.RID]; ok {
		return doc, nil
	}
	if doc, ok := mt.m.identity.Get(rec.RID); ok && doc.IsInitialized() {
		if mt.refresh {
			return mt.refreshDoc(doc, rec, plan)
		}
		return doc, nil
	}
	meta, fields, err := mt.m.mapper.Hydrate(rec)
	if err != nil {
		return nil, err
	}
	return mt.build(rec, meta, fields, plan)
}

// build registers the document of rec before its relations are resolved so
// that cycles between prefetched records end at the same instance.
func (mt *materializer) build(rec *models.Record, meta *models.ClassMetadata, fields map[string]any, plan fetchplan.Plan) (*document.Document, error) {
	doc, err := mt.m.factory.CreateProxy(meta.Name, rec.RID)
	if err != nil {
		return nil, err
	}
	mt.visiting[rec.RID] = doc

	snap, err := mt.snapshot(rec, meta, fields, plan)
	if err != nil {
		return nil, err
	}
	doc.Populate(snap)
	return doc, nil
}

// refreshDoc reloads an initialized document from rec, keeping the instance.
// A document with unflushed changes is left as it is.
func (mt *materializer) refreshDoc(doc *document.Document, rec *models.Record, plan fetchplan.Plan) (*document.Document, error) {
	mt.visiting[rec.RID] = doc
	if !mt.m.clean(doc) {
		mt.m.logger.Warn("refresh skipped, document has local changes", "rid", rec.RID.String(), "class", doc.Class())
		return doc, nil
	}
	meta, fields, err := mt.m.mapper.Hydrate(rec)
	if err != nil {
		return nil, err
	}
	snap, err := mt.snapshot(rec, meta, fields, plan)
	if err != nil {
		return nil, err
	}
	doc.Refresh(snap)
	return doc, nil
}

func (mt *materializer) snapshot(rec *models.Record, meta *models.ClassMetadata, fields map[string]any, plan fetchplan.Plan) (*document.Snapshot, error) {
	stored, err := mt.m.mapper.Dehydrate(meta, fields)
	if err != nil {
		return nil, err
	}
	for _, fd := range meta.Relations() {
		v, err := mt.relation(fd, fields[fd.Name], plan)
		if err != nil {
			return nil, err
		}
		fields[fd.Name] = v
	}
	mt.m.remember(rec.RID, stored)
	return &document.Snapshot{Meta: meta, Version: rec.Version, Fields: fields}, nil
}

func (mt *materializer) relation(fd models.FieldDescriptor, v any, plan fetchplan.Plan) (any, error) {
	next := plan.Descend()
	switch fd.Cardinality() {
	case models.CardinalitySingle:
		rid, ok := v.(models.RID)
		if !ok {
			return nil, nil
		}
		return mt.link(fd.Target, rid, next)
	case models.CardinalityCollection:
		rids, _ := v.([]models.RID)
		if !plan.Eager(fd.Name) && !mt.m.mapper.IsTolerant() {
			return document.NewCollection(rids, mt.m.resolver(fd.Target)), nil
		}
		docs := make([]*document.Document, 0, len(rids))
		for _, rid := range rids {
			doc, err := mt.link(fd.Target, rid, next)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}
	return v, nil
}

func (mt *materializer) link(target string, rid models.RID, plan fetchplan.Plan) (*document.Document, error) {
	if mt.res != nil {
		if rec, ok := mt.res.Prefetched[rid]; ok {
			return mt.record(rec, plan)
		}
	}
	return mt.m.factory.CreateProxy(target, rid)
}
