package binding

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// Adapter implements protocol.Adapter over a REST Client.
type Adapter struct {
	client *Client
}

var _ protocol.Adapter = (*Adapter)(nil)

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Send(ctx context.Context, req *protocol.Request) (*models.Result, error) {
	switch req.Op {
	case protocol.OpLoad:
		return a.load(ctx, req.RID, req.FetchPlan)
	case protocol.OpLoadMany:
		return a.loadMany(ctx, req.RIDs)
	case protocol.OpCreate:
		return a.create(ctx, req.Record)
	case protocol.OpUpdate:
		return a.update(ctx, req.Record)
	case protocol.OpDelete:
		resp, err := a.client.DeleteDocument(ctx, req.RID)
		if err != nil {
			return nil, err
		}
		return models.BoolResult(resp.Status != fiber.StatusNotFound), nil
	case protocol.OpCommand:
		if req.Command == nil {
			return nil, fmt.Errorf("%w: empty command", models.ErrInvalidQuery)
		}
		if err := req.Command.Validate(); err != nil {
			return nil, err
		}
		return a.command(ctx, req.Command)
	default:
		return nil, fmt.Errorf("%w: unsupported op %s", models.ErrInvalidQuery, req.Op)
	}
}

func (a *Adapter) load(ctx context.Context, rid models.RID, fetchPlan string) (*models.Result, error) {
	resp, err := a.client.GetDocument(ctx, rid, fetchPlan)
	if err != nil {
		return nil, err
	}
	if resp.Status == fiber.StatusNotFound || len(resp.Body) == 0 {
		return models.RecordsResult(), nil
	}
	return decodeRecords(resp.Body)
}

func (a *Adapter) loadMany(ctx context.Context, rids []models.RID) (*models.Result, error) {
	if len(rids) == 0 {
		return models.RecordsResult(), nil
	}
	targets := make([]string, len(rids))
	for i, r := range rids {
		targets[i] = r.String()
	}
	resp, err := a.client.Command(ctx, query.Select(targets...).String())
	if err != nil {
		return nil, err
	}
	if resp.Status == fiber.StatusNotFound {
		return models.RecordsResult(), nil
	}
	return decodeRecords(resp.Body)
}

func (a *Adapter) create(ctx context.Context, rec *models.Record) (*models.Result, error) {
	if rec == nil || rec.Class == "" {
		return nil, fmt.Errorf("%w: create without class", models.ErrInvalidQuery)
	}
	body, err := encodeRecord(&models.Record{RID: models.TransientRID, Class: rec.Class, Fields: rec.Fields})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}
	resp, err := a.client.PostDocument(ctx, body)
	if err != nil {
		return nil, err
	}
	res, err := decodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	if res.First() == nil || res.First().RID.IsTransient() {
		return nil, fmt.Errorf("%w: create returned no rid", protocol.ErrTransport)
	}
	return res, nil
}

func (a *Adapter) update(ctx context.Context, rec *models.Record) (*models.Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: update without record", models.ErrInvalidQuery)
	}
	body, err := encodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}
	resp, err := a.client.PutDocument(ctx, rec.RID, body)
	if err != nil {
		return nil, err
	}
	if resp.Status == fiber.StatusNotFound {
		return models.RecordsResult(), nil
	}

	// Older servers answer with a plain text confirmation.
	if res, err := decodeRecords(resp.Body); err == nil && res.First() != nil && !res.First().RID.IsTransient() {
		return res, nil
	}
	updated := rec.Clone()
	updated.Version++
	return models.RecordsResult(updated), nil
}

func (a *Adapter) command(ctx context.Context, cmd query.Command) (*models.Result, error) {
	resp, err := a.client.Command(ctx, cmd.String())
	if err != nil {
		return nil, err
	}

	switch cmd.Kind() {
	case query.KindSelect, query.KindInsert:
		if resp.Status == fiber.StatusNotFound {
			return models.RecordsResult(), nil
		}
		return decodeRecords(resp.Body)
	case query.KindUpdate, query.KindDelete:
		if resp.Status == fiber.StatusNotFound {
			return models.CountResult(0), nil
		}
		n, err := decodeCount(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		}
		return models.CountResult(n), nil
	default:
		ok := resp.Status != fiber.StatusNotFound && !strings.EqualFold(strings.TrimSpace(string(resp.Body)), "false")
		return models.BoolResult(ok), nil
	}
}
