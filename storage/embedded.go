package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/database"
	"github.com/sixpeteunder/orientdb-odm/fetchplan"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// Embedded is an in-process document store backed by sqlite. Commands are
// interpreted from their structured form; SQL text is never parsed.
type Embedded struct {
	repo   *database.Repository
	logger *slog.Logger
}

var _ protocol.Adapter = (*Embedded)(nil)

func NewEmbedded(repo *database.Repository, logger *slog.Logger) *Embedded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedded{repo: repo, logger: logger}
}

// Repository exposes the record store, mainly for fixtures.
func (e *Embedded) Repository() *database.Repository {
	return e.repo
}

// EnsureClasses creates a cluster for every class that lacks one.
func (e *Embedded) EnsureClasses(ctx context.Context, classes ...string) error {
	for _, class := range classes {
		if _, err := e.repo.EnsureCluster(ctx, class); err != nil {
			return err
		}
	}
	return nil
}

func (e *Embedded) Close() error {
	return e.repo.DB().Close()
}

func (e *Embedded) Send(ctx context.Context, req *protocol.Request) (*models.Result, error) {
	e.logger.Debug("embedded request", "op", req.Op.String(), "rid", req.RID.String())

	switch req.Op {
	case protocol.OpLoad:
		return e.load(ctx, req.RID, req.FetchPlan)
	case protocol.OpLoadMany:
		recs, err := e.repo.GetRecords(ctx, req.RIDs)
		if err != nil {
			return nil, e.storeErr(err)
		}
		return models.RecordsResult(recs...), nil
	case protocol.OpCreate:
		if req.Record == nil || req.Record.Class == "" {
			return nil, fmt.Errorf("%w: create without class", models.ErrInvalidQuery)
		}
		rec, err := e.repo.InsertRecord(ctx, req.Record.Class, req.Record.Fields)
		if err != nil {
			return nil, e.storeErr(err)
		}
		return models.RecordsResult(rec), nil
	case protocol.OpUpdate:
		if req.Record == nil {
			return nil, fmt.Errorf("%w: update without record", models.ErrInvalidQuery)
		}
		rec, err := e.repo.UpdateRecord(ctx, req.Record.RID, req.Record.Fields)
		if err != nil {
			return nil, e.storeErr(err)
		}
		if rec == nil {
			return models.RecordsResult(), nil
		}
		return models.RecordsResult(rec), nil
	case protocol.OpDelete:
		deleted, err := e.repo.DeleteRecord(ctx, req.RID)
		if err != nil {
			return nil, e.storeErr(err)
		}
		return models.BoolResult(deleted), nil
	case protocol.OpCommand:
		if req.Command == nil {
			return nil, fmt.Errorf("%w: empty command", models.ErrInvalidQuery)
		}
		if err := req.Command.Validate(); err != nil {
			return nil, err
		}
		return e.command(ctx, req.Command)
	default:
		return nil, fmt.Errorf("%w: unsupported op %s", models.ErrInvalidQuery, req.Op)
	}
}

// storeErr marks sqlite failures as transport failures of this backend.
func (e *Embedded) storeErr(err error) error {
	return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
}

func (e *Embedded) load(ctx context.Context, rid models.RID, plan string) (*models.Result, error) {
	fp, err := fetchplan.Parse(plan)
	if err != nil {
		return nil, err
	}
	rec, err := e.repo.GetRecord(ctx, rid)
	if err != nil {
		return nil, e.storeErr(err)
	}
	if rec == nil {
		return models.RecordsResult(), nil
	}
	res := models.RecordsResult(rec)
	if err := e.prefetch(ctx, res, []*models.Record{rec}, fp); err != nil {
		return nil, err
	}
	return res, nil
}

// prefetch adds the records linked from recs, following plan depth by depth.
func (e *Embedded) prefetch(ctx context.Context, res *models.Result, recs []*models.Record, plan fetchplan.Plan) error {
	if plan.IsDefault() {
		return nil
	}
	seen := make(map[models.RID]bool, len(res.Records))
	for _, r := range res.Records {
		seen[r.RID] = true
	}
	for rid := range res.Prefetched {
		seen[rid] = true
	}

	level := recs
	for len(level) > 0 && !plan.IsDefault() {
		var next []*models.Record
		for _, rec := range level {
			for name, v := range rec.Fields {
				if !plan.Eager(name) {
					continue
				}
				for _, rid := range linksOf(v) {
					if seen[rid] {
						continue
					}
					seen[rid] = true
					linked, err := e.repo.GetRecord(ctx, rid)
					if err != nil {
						return e.storeErr(err)
					}
					if linked == nil {
						continue
					}
					res.AddPrefetched(linked)
					next = append(next, linked)
				}
			}
		}
		level = next
		plan = plan.Descend()
	}
	return nil
}

func linksOf(v any) []models.RID {
	switch t := v.(type) {
	case models.RID:
		return []models.RID{t}
	case []models.RID:
		return t
	}
	return nil
}

func (e *Embedded) command(ctx context.Context, cmd query.Command) (*models.Result, error) {
	switch c := cmd.(type) {
	case *query.SelectQuery:
		return e.selectRecords(ctx, c)
	case *query.InsertCommand:
		rec, err := e.repo.InsertRecord(ctx, c.Class(), assignmentMap(c.Assignments()))
		if err != nil {
			return nil, e.storeErr(err)
		}
		return models.RecordsResult(rec), nil
	case *query.UpdateCommand:
		matches, err := e.match(ctx, []string{c.Target()}, c.Conditions())
		if err != nil {
			return nil, err
		}
		var n int64
		for _, rec := range matches {
			for _, a := range c.Assignments() {
				rec.Fields[a.Field] = a.Value
			}
			updated, err := e.repo.UpdateRecord(ctx, rec.RID, rec.Fields)
			if err != nil {
				return nil, e.storeErr(err)
			}
			if updated != nil {
				n++
			}
		}
		return models.CountResult(n), nil
	case *query.DeleteCommand:
		matches, err := e.match(ctx, []string{c.Target()}, c.Conditions())
		if err != nil {
			return nil, err
		}
		var n int64
		for _, rec := range matches {
			deleted, err := e.repo.DeleteRecord(ctx, rec.RID)
			if err != nil {
				return nil, e.storeErr(err)
			}
			if deleted {
				n++
			}
		}
		return models.CountResult(n), nil
	case *query.CredentialCommand:
		p := database.Permission{Role: c.Role(), Resource: c.Resource(), Permission: c.Permission()}
		if c.Kind() == query.KindRevoke {
			revoked, err := e.repo.Revoke(ctx, p)
			if err != nil {
				return nil, e.storeErr(err)
			}
			return models.BoolResult(revoked), nil
		}
		if err := e.repo.Grant(ctx, p); err != nil {
			return nil, e.storeErr(err)
		}
		return models.BoolResult(true), nil
	case *query.IndexCommand:
		if c.Kind() == query.KindDropIndex {
			dropped, err := e.repo.DropIndex(ctx, c.Name())
			if err != nil {
				return nil, e.storeErr(err)
			}
			return models.BoolResult(dropped), nil
		}
		created, err := e.repo.CreateIndex(ctx, database.Index{
			Name: c.Name(), Class: c.Class(), Property: c.Property(), Type: c.IndexType(),
		})
		if err != nil {
			return nil, e.storeErr(err)
		}
		return models.BoolResult(created), nil
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", models.ErrInvalidQuery, cmd)
	}
}

func (e *Embedded) selectRecords(ctx context.Context, q *query.SelectQuery) (*models.Result, error) {
	recs, err := e.match(ctx, q.Targets(), q.Conditions())
	if err != nil {
		return nil, err
	}

	if orders := q.Orders(); len(orders) > 0 {
		sort.SliceStable(recs, func(i, j int) bool {
			for _, o := range orders {
				n, ok := query.Compare(fieldValue(recs[i], o.Field), fieldValue(recs[j], o.Field))
				if !ok || n == 0 {
					continue
				}
				if o.Desc {
					return n > 0
				}
				return n < 0
			}
			return false
		})
	}

	if skip := q.SkipValue(); skip > 0 {
		if skip >= len(recs) {
			recs = nil
		} else {
			recs = recs[skip:]
		}
	}
	if limit := q.LimitValue(); limit >= 0 && limit < len(recs) {
		recs = recs[:limit]
	}

	res := models.RecordsResult(recs...)
	plan, err := fetchplan.Parse(q.FetchPlanValue())
	if err != nil {
		return nil, err
	}
	if err := e.prefetch(ctx, res, recs, plan); err != nil {
		return nil, err
	}
	return res, nil
}

// match returns the records of targets satisfying every condition.
func (e *Embedded) match(ctx context.Context, targets []string, conds []query.Condition) ([]*models.Record, error) {
	var candidates []*models.Record
	for _, target := range targets {
		if models.LooksLikeRID(target) {
			rid, err := models.ParseRID(target)
			if err != nil {
				return nil, err
			}
			rec, err := e.repo.GetRecord(ctx, rid)
			if err != nil {
				return nil, e.storeErr(err)
			}
			if rec != nil {
				candidates = append(candidates, rec)
			}
			continue
		}
		if _, ok, err := e.repo.ClusterOf(ctx, target); err != nil {
			return nil, e.storeErr(err)
		} else if !ok {
			return nil, fmt.Errorf("%w: class %s does not exist", models.ErrInvalidQuery, target)
		}
		recs, err := e.repo.RecordsOfClass(ctx, target)
		if err != nil {
			return nil, e.storeErr(err)
		}
		candidates = append(candidates, recs...)
	}

	out := candidates[:0]
	for _, rec := range candidates {
		if matchesAll(rec, conds) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchesAll(rec *models.Record, conds []query.Condition) bool {
	for _, c := range conds {
		if !c.Eval(fieldValue(rec, c.Field)) {
			return false
		}
	}
	return true
}

// fieldValue resolves system attributes and dotted paths into embedded maps.
func fieldValue(rec *models.Record, path string) any {
	switch path {
	case "@rid":
		return rec.RID
	case "@class":
		return rec.Class
	case "@version":
		return int64(rec.Version)
	}
	parts := strings.Split(path, ".")
	var cur any = rec.Fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func assignmentMap(as []query.Assignment) map[string]any {
	out := make(map[string]any, len(as))
	for _, a := range as {
		out[a.Field] = a.Value
	}
	return out
}
