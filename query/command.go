// Package query builds commands for the document store. Builders are plain
// values: they hold tokens and render SQL text but never talk to the network.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Kind identifies the statement a command renders to.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindGrant
	KindRevoke
	KindCreateIndex
	KindDropIndex
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindGrant:
		return "grant"
	case KindRevoke:
		return "revoke"
	case KindCreateIndex:
		return "create index"
	case KindDropIndex:
		return "drop index"
	default:
		return "unknown"
	}
}

// Mutates reports whether the statement changes stored records.
func (k Kind) Mutates() bool {
	return k == KindUpdate || k == KindDelete
}

// Command is a value object describing one statement.
type Command interface {
	Kind() Kind
	// Token returns the values set for a token such as "Target" or "Where".
	Token(name string) []string
	String() string
	Validate() error
}

// Returning selects what a mutating statement reports back.
type Returning int

const (
	// ReturnNone reports a success flag.
	ReturnNone Returning = iota
	// ReturnCount reports the number of affected records.
	ReturnCount
)

// Assignment is one "field = value" pair of a SET clause.
type Assignment struct {
	Field string
	Value any
}

// Order is one ORDER BY entry.
type Order struct {
	Field string
	Desc  bool
}

func assignmentsFromMap(values map[string]any) []Assignment {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Assignment, 0, len(keys))
	for _, k := range keys {
		out = append(out, Assignment{Field: k, Value: values[k]})
	}
	return out
}

func renderAssignments(as []Assignment) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Field+" = "+FormatValue(a.Value))
	}
	return out
}

func renderConditions(cs []Condition) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}

// FormatValue renders a Go value as a literal. Strings are quoted, RIDs are not.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case models.RID:
		return t.String()
	case *models.RID:
		if t == nil {
			return "NULL"
		}
		return t.String()
	case string:
		return quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return quote(t.Format(models.DatetimeLayout))
	case []models.RID:
		parts := make([]string, len(t))
		for i, r := range t {
			parts[i] = r.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		parts := make([]string, len(t))
		for i, s := range t {
			parts[i] = quote(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + FormatValue(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return quote(fmt.Sprint(v))
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func validateTargets(kind Kind, targets []string) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s without target", models.ErrInvalidQuery, kind)
	}
	for _, t := range targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: %s with empty target", models.ErrInvalidQuery, kind)
		}
		if strings.HasPrefix(t, "#") {
			if _, err := models.ParseRID(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateConditions(cs []Condition) error {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func renderTarget(targets []string) string {
	if len(targets) > 1 {
		return "[" + strings.Join(targets, ", ") + "]"
	}
	if len(targets) == 1 {
		return targets[0]
	}
	return ""
}

func normalizeTarget(t string) string {
	if rid, err := models.ParseRID(t); err == nil {
		return rid.String()
	}
	return t
}
