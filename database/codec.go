package database

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Field type markers kept next to the body, as in @fieldTypes.
const (
	typeLink     = "x"
	typeLinkList = "z"
	typeDatetime = "t"
)

type body struct {
	Fields bson.M            `bson:"fields"`
	Types  map[string]string `bson:"types,omitempty"`
}

// EncodeBody serializes record fields. Links are stored as "#c:p" strings and
// tagged so they decode back to models.RID.
func EncodeBody(fields map[string]any) ([]byte, error) {
	b := body{Fields: bson.M{}, Types: map[string]string{}}
	for k, v := range fields {
		switch t := v.(type) {
		case models.RID:
			b.Fields[k] = t.String()
			b.Types[k] = typeLink
		case *models.RID:
			if t == nil {
				b.Fields[k] = nil
				continue
			}
			b.Fields[k] = t.String()
			b.Types[k] = typeLink
		case []models.RID:
			list := make([]string, len(t))
			for i, r := range t {
				list[i] = r.String()
			}
			b.Fields[k] = list
			b.Types[k] = typeLinkList
		case time.Time:
			b.Fields[k] = t
			b.Types[k] = typeDatetime
		default:
			b.Fields[k] = v
		}
	}
	data, err := bson.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record body: %w", err)
	}
	return data, nil
}

// DecodeBody is the inverse of EncodeBody.
func DecodeBody(data []byte) (map[string]any, error) {
	var b body
	if err := bson.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode record body: %w", err)
	}
	out := make(map[string]any, len(b.Fields))
	for k, v := range b.Fields {
		v = normalize(v)
		switch b.Types[k] {
		case typeLink:
			if s, ok := v.(string); ok {
				rid, err := models.ParseRID(s)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", k, err)
				}
				v = rid
			}
		case typeLinkList:
			list, _ := v.([]any)
			rids := make([]models.RID, 0, len(list))
			for _, e := range list {
				s, _ := e.(string)
				rid, err := models.ParseRID(s)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", k, err)
				}
				rids = append(rids, rid)
			}
			v = rids
		}
		out[k] = v
	}
	return out, nil
}

// normalize turns driver types into plain Go values.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
