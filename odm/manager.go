// Package odm maps stored documents to live objects and tracks their
// changes until they are flushed.
package odm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/fetchplan"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/proxy"
	"github.com/sixpeteunder/orientdb-odm/query"
	"github.com/sixpeteunder/orientdb-odm/validator"
)

// Manager is the entry point for reading and writing mapped documents. It
// owns an identity map, a proxy factory and a queue of pending writes.
//
// A Manager serves one logical flow: its queue must not be mutated from
// several goroutines at once. Proxies it hands out may be loaded
// concurrently. Independent Managers share nothing.
type Manager struct {
	mapper    *mapper.Mapper
	adapter   protocol.Adapter
	logger    *slog.Logger
	validator *validator.Validator

	identity *document.IdentityMap
	factory  *proxy.Factory
	loader   document.Loader
	uow      unitOfWork

	// last known stored fields per RID, used to skip unchanged updates
	syncMu sync.Mutex
	synced map[models.RID]map[string]any
}

type Option func(*Manager)

// WithValidator replaces the validator used for field rules on flush.
func WithValidator(v *validator.Validator) Option {
	return func(m *Manager) {
		if v != nil {
			m.validator = v
		}
	}
}

// NewManager creates a manager over adapter. A nil logger falls back to
// slog.Default().
func NewManager(m *mapper.Mapper, a protocol.Adapter, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := &Manager{
		mapper:    m,
		adapter:   a,
		logger:    logger,
		validator: validator.New(),
		identity:  document.NewIdentityMap(),
		synced:    make(map[models.RID]map[string]any),
	}
	mgr.loader = document.LoaderFunc(mgr.load)
	mgr.factory = proxy.NewFactory(m, mgr.identity, mgr.loader)
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

func (m *Manager) Mapper() *mapper.Mapper {
	return m.mapper
}

func (m *Manager) ProxyFactory() *proxy.Factory {
	return m.factory
}

// Find returns the document stored at rid, or nil without error when no
// such record exists. A document already in the identity map is returned
// without remote I/O unless a non-default fetch plan is given; the fetched
// data then refreshes that same instance when it has no unflushed changes.
func (m *Manager) Find(ctx context.Context, rid string, fetchPlan ...string) (*document.Document, error) {
	id, err := parseRID(rid)
	if err != nil {
		return nil, err
	}
	plan, err := parsePlan(fetchPlan)
	if err != nil {
		return nil, err
	}

	if doc, ok := m.identity.Get(id); ok && plan.IsDefault() {
		if doc.IsInitialized() {
			m.logger.Debug("identity map hit", "rid", id.String())
		}
		if err := doc.Activate(ctx); err != nil {
			return nil, err
		}
		if doc.Missing() {
			return nil, nil
		}
		return doc, nil
	}

	planText := ""
	if !plan.IsDefault() {
		planText = plan.String()
	}
	res, err := m.adapter.Send(ctx, protocol.Load(id, planText))
	if err != nil {
		return nil, err
	}
	rec := res.First()
	if rec == nil {
		return nil, nil
	}
	mt := m.newMaterializer(res)
	mt.refresh = !plan.IsDefault()
	return mt.record(rec, plan)
}

type hydratedRecord struct {
	rec    *models.Record
	meta   *models.ClassMetadata
	fields map[string]any
}

// FindRecords loads several records at once. Either every RID resolves to
// a mapped record or the call fails with ErrInvalidQuery and nothing is
// materialized.
func (m *Manager) FindRecords(ctx context.Context, rids []string) ([]*document.Document, error) {
	ids := make([]models.RID, 0, len(rids))
	for _, s := range rids {
		id, err := parseRID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []*document.Document{}, nil
	}

	res, err := m.adapter.Send(ctx, protocol.LoadMany(ids))
	if err != nil {
		return nil, err
	}

	byRID := make(map[models.RID]hydratedRecord, len(res.Records))
	for _, rec := range res.Records {
		meta, fields, err := m.mapper.Hydrate(rec)
		if err != nil {
			if errors.Is(err, ErrClassNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
			}
			return nil, err
		}
		byRID[rec.RID] = hydratedRecord{rec: rec, meta: meta, fields: fields}
	}
	for _, id := range ids {
		if _, ok := byRID[id]; !ok {
			return nil, fmt.Errorf("%w: record %s not found", ErrInvalidQuery, id)
		}
	}

	mt := m.newMaterializer(res)
	docs := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := mt.cached(id); ok {
			docs = append(docs, doc)
			continue
		}
		h := byRID[id]
		doc, err := mt.build(h.rec, h.meta, h.fields, fetchplan.Default())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Execute runs a command. Selects and inserts return documents merged into
// the identity map. Updates and deletes must affect at least one record;
// cached documents they may have touched are refreshed in place.
func (m *Manager) Execute(ctx context.Context, cmd query.Command) (*Result, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrVoidDocument)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	res, err := m.adapter.Send(ctx, protocol.Command(cmd))
	if err != nil {
		return nil, err
	}

	out := &Result{Kind: cmd.Kind()}
	switch cmd.Kind() {
	case query.KindSelect, query.KindInsert:
		plan := fetchplan.Default()
		if q, ok := cmd.(*query.SelectQuery); ok {
			if plan, err = fetchplan.Parse(q.FetchPlanValue()); err != nil {
				return nil, err
			}
		}
		mt := m.newMaterializer(res)
		out.Documents = make([]*document.Document, 0, len(res.Records))
		for _, rec := range res.Records {
			doc, err := mt.record(rec, plan)
			if err != nil {
				return nil, err
			}
			out.Documents = append(out.Documents, doc)
		}
		out.Success = true
	case query.KindUpdate, query.KindDelete:
		n := affected(res)
		if n == 0 {
			return nil, fmt.Errorf("%w: %s matched no records", ErrVoidDocument, cmd.Kind())
		}
		if t, ok := cmd.(interface{ Target() string }); ok {
			m.refreshTarget(ctx, t.Target())
		}
		if r, ok := cmd.(interface{ Returning() query.Returning }); ok && r.Returning() == query.ReturnCount {
			out.Count = n
		} else {
			out.Success = true
		}
	default:
		out.Success = res.Kind != models.ResultBoolean || res.Bool
	}

	m.logger.Debug("command executed", "kind", cmd.Kind().String(), "documents", len(out.Documents), "count", out.Count)
	return out, nil
}

func affected(res *models.Result) int64 {
	switch res.Kind {
	case models.ResultCount:
		return res.Count
	case models.ResultBoolean:
		if res.Bool {
			return 1
		}
		return 0
	default:
		return int64(len(res.Records))
	}
}

// refreshTarget reloads the cached documents of target, a RID or a class,
// in one batch. Documents with unflushed changes keep them. Records that no
// longer exist leave their documents initialized and missing. Failures are
// logged since the command itself was applied.
func (m *Manager) refreshTarget(ctx context.Context, target string) {
	var candidates []*document.Document
	if models.LooksLikeRID(target) {
		rid, err := models.ParseRID(target)
		if err != nil {
			return
		}
		if doc, ok := m.identity.Get(rid); ok {
			candidates = append(candidates, doc)
		}
	} else {
		for _, doc := range m.identity.Documents() {
			meta := doc.Meta()
			if meta != nil && (meta.Schema == target || meta.Name == target) {
				candidates = append(candidates, doc)
			}
		}
	}

	var docs []*document.Document
	var rids []models.RID
	for _, doc := range candidates {
		if !doc.IsInitialized() || doc.Missing() || !doc.HasRID() {
			continue
		}
		if !m.clean(doc) {
			m.logger.Warn("refresh skipped, document has local changes", "rid", doc.RID().String(), "class", doc.Class())
			continue
		}
		docs = append(docs, doc)
		rids = append(rids, doc.RID())
	}
	if len(docs) == 0 {
		return
	}

	res, err := m.adapter.Send(ctx, protocol.LoadMany(rids))
	if err != nil {
		m.logger.Warn("refresh after command failed", "target", target, "error", err)
		return
	}
	mt := m.newMaterializer(res)
	mt.refresh = true
	found := make(map[models.RID]bool, len(res.Records))
	for _, rec := range res.Records {
		found[rec.RID] = true
		if _, err := mt.record(rec, fetchplan.Default()); err != nil {
			m.logger.Warn("refresh after command failed", "rid", rec.RID.String(), "error", err)
		}
	}
	for _, doc := range docs {
		if !found[doc.RID()] && doc.Refresh(nil) {
			m.forgetSynced(doc.RID())
		}
	}
	m.logger.Debug("cached documents refreshed", "target", target, "count", len(docs))
}

// clean reports whether doc holds exactly the state last read from or
// written to the store. Missing documents hold nothing to lose.
func (m *Manager) clean(doc *document.Document) bool {
	if doc.Missing() {
		return true
	}
	meta := doc.Meta()
	current := doc.Snapshot()
	last, ok := m.lastSynced(doc.RID())
	if meta == nil || current == nil || !ok {
		return false
	}
	stored, err := m.mapper.Dehydrate(meta, current)
	if err != nil {
		return false
	}
	return sameState(last, stored)
}

// GetReference returns a proxy for rid without remote I/O.
func (m *Manager) GetReference(class, rid string) (*document.Document, error) {
	id, err := parseRID(rid)
	if err != nil {
		return nil, err
	}
	return m.factory.CreateProxy(class, id)
}

// NewDocument returns a transient document of class with its declared
// defaults. It is stored by Persist and Flush.
func (m *Manager) NewDocument(class string) (*document.Document, error) {
	return m.factory.NewDocument(class)
}

// Detach evicts doc from the identity map and drops its queued write.
func (m *Manager) Detach(doc *document.Document) {
	if doc == nil {
		return
	}
	if m.identity.Contains(doc) {
		m.identity.Remove(doc.RID())
	}
	m.uow.forget(doc)
	m.forgetSynced(doc.RID())
	doc.Detach()
}

// Clear empties the identity map and the queue.
func (m *Manager) Clear() {
	m.identity.Clear()
	m.uow.clear()
	m.syncMu.Lock()
	m.synced = make(map[models.RID]map[string]any)
	m.syncMu.Unlock()
}

// Pending returns the number of queued writes.
func (m *Manager) Pending() int {
	return m.uow.len()
}

// Contains reports whether doc is the live instance for its RID.
func (m *Manager) Contains(doc *document.Document) bool {
	return m.identity.Contains(doc)
}

// load backs every proxy handed out by this manager.
func (m *Manager) load(ctx context.Context, rid models.RID) (*document.Snapshot, error) {
	res, err := m.adapter.Send(ctx, protocol.Load(rid, ""))
	if err != nil {
		return nil, err
	}
	rec := res.First()
	if rec == nil {
		m.forgetSynced(rid)
		return nil, nil
	}
	meta, fields, err := m.mapper.Hydrate(rec)
	if err != nil {
		return nil, err
	}
	mt := m.newMaterializer(res)
	if doc, ok := m.identity.Get(rid); ok {
		mt.visiting[rid] = doc
	}
	m.logger.Debug("proxy loaded", "rid", rid.String(), "class", meta.Name)
	return mt.snapshot(rec, meta, fields, fetchplan.Default())
}

// resolver loads the members of a lazy collection in one batch.
func (m *Manager) resolver(class string) document.Resolver {
	return func(ctx context.Context, rids []models.RID) ([]*document.Document, error) {
		docs := make([]*document.Document, len(rids))
		var pending []models.RID
		for i, rid := range rids {
			doc, err := m.factory.CreateProxy(class, rid)
			if err != nil {
				return nil, err
			}
			docs[i] = doc
			if !doc.IsInitialized() {
				pending = append(pending, rid)
			}
		}
		if len(pending) == 0 {
			return docs, nil
		}

		res, err := m.adapter.Send(ctx, protocol.LoadMany(pending))
		if err != nil {
			return nil, err
		}
		mt := m.newMaterializer(res)
		for _, rec := range res.Records {
			if _, err := mt.record(rec, fetchplan.Default()); err != nil {
				return nil, err
			}
		}
		// Members the store did not return no longer exist.
		for _, doc := range docs {
			doc.Populate(nil)
		}
		return docs, nil
	}
}

func (m *Manager) remember(rid models.RID, fields map[string]any) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	m.synced[rid] = fields
}

func (m *Manager) lastSynced(rid models.RID) (map[string]any, bool) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	fields, ok := m.synced[rid]
	return fields, ok
}

func (m *Manager) forgetSynced(rid models.RID) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	delete(m.synced, rid)
}

func parseRID(s string) (models.RID, error) {
	rid, err := models.ParseRID(s)
	if err != nil {
		return models.RID{}, err
	}
	if rid.IsTransient() {
		return models.RID{}, fmt.Errorf("%w: %s is not a stored record", ErrInvalidQuery, s)
	}
	return rid, nil
}

func parsePlan(plans []string) (fetchplan.Plan, error) {
	switch len(plans) {
	case 0:
		return fetchplan.Default(), nil
	case 1:
		return fetchplan.Parse(plans[0])
	default:
		return fetchplan.Plan{}, fmt.Errorf("%w: more than one fetch plan", ErrInvalidQuery)
	}
}
