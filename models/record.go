package models

// Record is the raw shape of a stored document. Link values are RID,
// link collections are []RID and embedded documents are map[string]any.
type Record struct {
	RID     RID
	Class   string
	Version int
	Fields  map[string]any
}

// Clone returns a copy whose field map can be mutated independently.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = CloneFields(r.Fields)
	return &out
}

// CloneFields copies a field map, descending into slices and embedded maps.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue copies slices and embedded maps; other values are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []RID:
		return append([]RID(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ResultKind tags the shape of a Result.
type ResultKind int

const (
	ResultRecords ResultKind = iota
	ResultBoolean
	ResultCount
)

func (k ResultKind) String() string {
	switch k {
	case ResultRecords:
		return "records"
	case ResultBoolean:
		return "boolean"
	case ResultCount:
		return "count"
	default:
		return "unknown"
	}
}

// Result is the raw answer of a protocol adapter.
type Result struct {
	Kind    ResultKind
	Records []*Record
	// Prefetched holds linked records returned alongside Records by a fetch plan.
	Prefetched map[RID]*Record
	Bool       bool
	Count      int64
}

// RecordsResult builds a ResultRecords value.
func RecordsResult(records ...*Record) *Result {
	return &Result{Kind: ResultRecords, Records: records}
}

// BoolResult builds a ResultBoolean value.
func BoolResult(b bool) *Result {
	return &Result{Kind: ResultBoolean, Bool: b}
}

// CountResult builds a ResultCount value.
func CountResult(n int64) *Result {
	return &Result{Kind: ResultCount, Count: n}
}

// First returns the first record or nil.
func (r *Result) First() *Record {
	if r == nil || len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// AddPrefetched stores a linked record, keeping the first copy seen.
func (r *Result) AddPrefetched(rec *Record) {
	if rec == nil {
		return
	}
	if r.Prefetched == nil {
		r.Prefetched = make(map[RID]*Record)
	}
	if _, ok := r.Prefetched[rec.RID]; !ok {
		r.Prefetched[rec.RID] = rec
	}
}
