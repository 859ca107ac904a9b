package binding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sixpeteunder/orientdb-odm/models"
)

var linkPattern = regexp.MustCompile(`^#\d+:\d+$`)

// decoder converts OrientDB JSON into records. Linked documents embedded by
// a fetch plan are lifted into the result's prefetched set.
type decoder struct {
	result *models.Result
}

func newDecoder() *decoder {
	return &decoder{result: models.RecordsResult()}
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return v, nil
}

// document decodes one top level record.
func (d *decoder) document(obj map[string]any) (*models.Record, error) {
	rec := &models.Record{Fields: make(map[string]any, len(obj))}
	for k, v := range obj {
		switch k {
		case "@rid":
			s, _ := v.(string)
			rid, err := models.ParseRID(s)
			if err != nil {
				return nil, err
			}
			rec.RID = rid
		case "@class":
			rec.Class, _ = v.(string)
		case "@version":
			if n, ok := number(v).(int64); ok {
				rec.Version = int(n)
			}
		default:
			if strings.HasPrefix(k, "@") {
				continue
			}
			rec.Fields[k] = d.value(v)
		}
	}
	return rec, nil
}

func (d *decoder) value(v any) any {
	switch t := v.(type) {
	case string:
		if linkPattern.MatchString(t) {
			return models.MustParseRID(t)
		}
		return t
	case json.Number:
		return number(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = d.value(e)
		}
		return out
	case map[string]any:
		if _, linked := t["@rid"]; linked && t["@class"] != nil {
			rec, err := d.document(t)
			if err == nil && !rec.RID.IsTransient() {
				d.result.AddPrefetched(rec)
				return rec.RID
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			if strings.HasPrefix(k, "@") {
				continue
			}
			out[k] = d.value(e)
		}
		return out
	default:
		return v
	}
}

func number(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// decodeRecords reads either a single document or a {"result": [...]} set.
func decodeRecords(data []byte) (*models.Result, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	d := newDecoder()
	var items []any
	switch t := v.(type) {
	case map[string]any:
		if result, ok := t["result"].([]any); ok {
			items = result
		} else {
			items = []any{t}
		}
	case []any:
		items = t
	default:
		return nil, fmt.Errorf("unexpected response of type %T", v)
	}

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec, err := d.document(obj)
		if err != nil {
			return nil, err
		}
		d.result.Records = append(d.result.Records, rec)
	}
	// Top level records never count as prefetched.
	for _, rec := range d.result.Records {
		delete(d.result.Prefetched, rec.RID)
	}
	return d.result, nil
}

// decodeCount reads the affected record count of an update or delete.
func decodeCount(data []byte) (int64, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return 0, err
	}
	if obj, ok := v.(map[string]any); ok {
		if result, ok := obj["result"].([]any); ok && len(result) > 0 {
			v = result[0]
		}
	}
	if obj, ok := v.(map[string]any); ok {
		if value, ok := obj["value"]; ok {
			v = value
		}
	}
	switch n := number(v).(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("response carries no count: %s", truncate(string(data), 128))
}

// encodeRecord renders a record body for POST and PUT.
func encodeRecord(rec *models.Record) ([]byte, error) {
	obj := make(map[string]any, len(rec.Fields)+3)
	for k, v := range rec.Fields {
		obj[k] = encodeValue(v)
	}
	obj["@class"] = rec.Class
	if !rec.RID.IsTransient() {
		obj["@rid"] = rec.RID.String()
		obj["@version"] = rec.Version
	}
	return json.Marshal(obj)
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case models.RID:
		return t.String()
	case []models.RID:
		out := make([]string, len(t))
		for i, r := range t {
			out[i] = r.String()
		}
		return out
	case time.Time:
		return t.UTC().Format(models.DatetimeLayout)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}
