package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Operator of a WHERE condition.
type Operator string

const (
	OpEq   Operator = "="
	OpNeq  Operator = "!="
	OpLt   Operator = "<"
	OpLte  Operator = "<="
	OpGt   Operator = ">"
	OpGte  Operator = ">="
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpLike, OpIn:
		return true
	}
	return false
}

// Condition is one predicate. Conditions of a statement are joined with AND.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// NewCondition normalizes the operator and turns RID strings compared
// against @rid into RID values.
func NewCondition(field string, op Operator, value any) Condition {
	op = Operator(strings.ToUpper(strings.TrimSpace(string(op))))
	if field == "@rid" {
		if s, ok := value.(string); ok {
			if rid, err := models.ParseRID(s); err == nil {
				value = rid
			}
		}
	}
	return Condition{Field: field, Op: op, Value: value}
}

func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: condition without field", models.ErrInvalidQuery)
	}
	if !c.Op.valid() {
		return fmt.Errorf("%w: unsupported operator %q", models.ErrInvalidQuery, c.Op)
	}
	if c.Op == OpIn {
		if v := reflect.ValueOf(c.Value); !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return fmt.Errorf("%w: IN expects a list", models.ErrInvalidQuery)
		}
	}
	return nil
}

func (c Condition) String() string {
	return c.Field + " " + string(c.Op) + " " + FormatValue(c.Value)
}

// Eval applies the condition to a field value.
func (c Condition) Eval(actual any) bool {
	switch c.Op {
	case OpEq:
		return equal(actual, c.Value)
	case OpNeq:
		return !equal(actual, c.Value)
	case OpLt:
		n, ok := Compare(actual, c.Value)
		return ok && n < 0
	case OpLte:
		n, ok := Compare(actual, c.Value)
		return ok && n <= 0
	case OpGt:
		n, ok := Compare(actual, c.Value)
		return ok && n > 0
	case OpGte:
		n, ok := Compare(actual, c.Value)
		return ok && n >= 0
	case OpLike:
		s, ok := actual.(string)
		p, okp := c.Value.(string)
		return ok && okp && likePattern(p).MatchString(s)
	case OpIn:
		v := reflect.ValueOf(c.Value)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if equal(actual, v.Index(i).Interface()) {
				return true
			}
		}
	}
	return false
}

func likePattern(p string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func equal(a, b any) bool {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			return an == bn
		}
	}
	if ar, ok := toRID(a); ok {
		if br, ok := toRID(b); ok {
			return ar == br
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := toTime(b); ok {
			return at.Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of the same family (numbers, times, strings).
// ok is false when they are not comparable.
func Compare(a, b any) (n int, ok bool) {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			}
			return 0, true
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), true
		}
	}
	as, ok := a.(string)
	bs, okb := b.(string)
	if ok && okb {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toRID(v any) (models.RID, bool) {
	switch r := v.(type) {
	case models.RID:
		return r, true
	case *models.RID:
		if r != nil {
			return *r, true
		}
	case string:
		if rid, err := models.ParseRID(r); err == nil {
			return rid, true
		}
	}
	return models.RID{}, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(models.DatetimeLayout, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
