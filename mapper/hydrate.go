package mapper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/models"
)

// Hydrate resolves the class of a stored record and converts its fields to
// local names and types. Links stay as models.RID and link collections as
// []models.RID; materializing them is left to the caller.
func (m *Mapper) Hydrate(rec *models.Record) (*models.ClassMetadata, map[string]any, error) {
	meta, err := m.ResolveSchema(rec.Class)
	if err != nil {
		return nil, nil, fmt.Errorf("record %s: %w", rec.RID, err)
	}
	fields, err := m.HydrateAs(meta, rec)
	if err != nil {
		return nil, nil, err
	}
	return meta, fields, nil
}

// HydrateAs converts a record's fields using the given class.
func (m *Mapper) HydrateAs(meta *models.ClassMetadata, rec *models.Record) (map[string]any, error) {
	tolerant := m.IsTolerant()
	out := make(map[string]any, len(meta.Fields))

	for remote, raw := range rec.Fields {
		if strings.HasPrefix(remote, "@") {
			continue
		}
		fd, ok := meta.RemoteField(remote)
		if !ok {
			if tolerant {
				m.logger.Debug("dropping undeclared field", "class", meta.Name, "field", remote, "rid", rec.RID.String())
				continue
			}
			return nil, fmt.Errorf("%w: %s has undeclared field %q in record %s", models.ErrMappingMismatch, meta.Name, remote, rec.RID)
		}
		v, err := convert(fd, raw)
		if err != nil {
			if tolerant {
				out[fd.Name] = fd.Default
				continue
			}
			return nil, fmt.Errorf("%w: %s.%s in record %s: %v", models.ErrMappingMismatch, meta.Name, fd.Name, rec.RID, err)
		}
		out[fd.Name] = v
	}

	for _, fd := range meta.Fields {
		if _, ok := out[fd.Name]; ok {
			continue
		}
		if !tolerant {
			return nil, fmt.Errorf("%w: record %s lacks declared field %s.%s", models.ErrMappingMismatch, rec.RID, meta.Name, fd.Name)
		}
		out[fd.Name] = fd.Default
	}
	return out, nil
}

func convert(fd models.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch fd.Type {
	case models.TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case models.RID:
			return v.String(), nil
		case bool, int, int32, int64, float64:
			return fmt.Sprint(v), nil
		}
	case models.TypeInteger:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case models.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case models.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case models.TypeDatetime:
		return toTime(raw)
	case models.TypeEmbedded:
		return models.CloneValue(raw), nil
	case models.TypeLink:
		return toRID(raw)
	case models.TypeLinkList, models.TypeLinkSet:
		return toRIDs(raw)
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, fd.Type)
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		if t, err := time.Parse(models.DatetimeLayout, v); err == nil {
			return t, nil
		}
		return time.Parse(time.DateOnly, v)
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot use %T as datetime", raw)
}

func toRID(raw any) (models.RID, error) {
	switch v := raw.(type) {
	case models.RID:
		return v, nil
	case *models.RID:
		if v != nil {
			return *v, nil
		}
	case string:
		return models.ParseRID(v)
	}
	return models.RID{}, fmt.Errorf("cannot use %T as link", raw)
}

func toRIDs(raw any) ([]models.RID, error) {
	switch v := raw.(type) {
	case []models.RID:
		return append([]models.RID(nil), v...), nil
	case []string:
		out := make([]models.RID, 0, len(v))
		for _, s := range v {
			rid, err := models.ParseRID(s)
			if err != nil {
				return nil, err
			}
			out = append(out, rid)
		}
		return out, nil
	case []any:
		out := make([]models.RID, 0, len(v))
		for _, e := range v {
			rid, err := toRID(e)
			if err != nil {
				return nil, err
			}
			out = append(out, rid)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as link collection", raw)
}

// Dehydrate converts local field values to their stored names and shapes.
// Documents become RIDs, so every related document must already be stored;
// see Unsaved for the ones that are not. Only fields present in values are
// emitted.
func (m *Mapper) Dehydrate(meta *models.ClassMetadata, values map[string]any) (map[string]any, error) {
	tolerant := m.IsTolerant()
	out := make(map[string]any, len(values))
	for name, v := range values {
		fd, ok := meta.Field(name)
		if !ok {
			if tolerant {
				continue
			}
			return nil, fmt.Errorf("%w: %s.%s", models.ErrUnknownField, meta.Name, name)
		}
		stored, err := dehydrateValue(fd, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", meta.Name, name, err)
		}
		out[fd.RemoteName()] = stored
	}
	return out, nil
}

func dehydrateValue(fd models.FieldDescriptor, v any) (any, error) {
	switch fd.Cardinality() {
	case models.CardinalitySingle:
		return linkOf(v)
	case models.CardinalityCollection:
		rids, err := linksOf(v)
		if err != nil {
			return nil, err
		}
		if rids == nil {
			rids = []models.RID{}
		}
		return rids, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(models.DatetimeLayout), nil
	case int:
		return int64(t), nil
	default:
		return models.CloneValue(v), nil
	}
}

func linksOf(v any) ([]models.RID, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *document.Collection:
		return t.RIDs(), nil
	case []*document.Document:
		out := make([]models.RID, 0, len(t))
		for _, d := range t {
			rid, err := linkOf(d)
			if err != nil {
				return nil, err
			}
			if r, ok := rid.(models.RID); ok {
				out = append(out, r)
			}
		}
		return out, nil
	default:
		return toRIDs(v)
	}
}

func linkOf(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *document.Document:
		if t == nil {
			return nil, nil
		}
		if !t.HasRID() {
			return nil, fmt.Errorf("%w: link to unsaved %s document", models.ErrVoidDocument, t.Class())
		}
		return t.RID(), nil
	default:
		return toRID(v)
	}
}

// Unsaved returns the transient documents referenced by relation fields of
// values, in field declaration order.
func Unsaved(meta *models.ClassMetadata, values map[string]any) []*document.Document {
	var out []*document.Document
	for _, fd := range meta.Relations() {
		switch t := values[fd.Name].(type) {
		case *document.Document:
			if t != nil && !t.HasRID() {
				out = append(out, t)
			}
		case []*document.Document:
			for _, d := range t {
				if d != nil && !d.HasRID() {
					out = append(out, d)
				}
			}
		}
	}
	return out
}
