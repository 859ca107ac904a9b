package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/fetchplan"
	"github.com/sixpeteunder/orientdb-odm/models"
)

// SelectQuery reads records from classes or RIDs.
type SelectQuery struct {
	targets    []string
	conditions []Condition
	orders     []Order
	limit      int
	skip       int
	fetchPlan  string
}

// Select starts a query over classes or RIDs.
func Select(targets ...string) *SelectQuery {
	return (&SelectQuery{limit: -1}).From(targets...)
}

// From adds targets.
func (q *SelectQuery) From(targets ...string) *SelectQuery {
	for _, t := range targets {
		q.targets = append(q.targets, normalizeTarget(t))
	}
	return q
}

// Where adds a condition joined with AND to any existing ones.
func (q *SelectQuery) Where(field string, op Operator, value any) *SelectQuery {
	q.conditions = append(q.conditions, NewCondition(field, op, value))
	return q
}

// And is an alias of Where.
func (q *SelectQuery) And(field string, op Operator, value any) *SelectQuery {
	return q.Where(field, op, value)
}

func (q *SelectQuery) OrderBy(field string, desc bool) *SelectQuery {
	q.orders = append(q.orders, Order{Field: field, Desc: desc})
	return q
}

// Limit caps the number of records. Negative means no limit.
func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit = n
	return q
}

func (q *SelectQuery) Skip(n int) *SelectQuery {
	q.skip = n
	return q
}

func (q *SelectQuery) FetchPlan(plan string) *SelectQuery {
	q.fetchPlan = plan
	return q
}

func (q *SelectQuery) Kind() Kind { return KindSelect }
func (q *SelectQuery) Targets() []string { return q.targets }
func (q *SelectQuery) Conditions() []Condition { return q.conditions }
func (q *SelectQuery) Orders() []Order { return q.orders }
func (q *SelectQuery) LimitValue() int { return q.limit }
func (q *SelectQuery) SkipValue() int { return q.skip }
func (q *SelectQuery) FetchPlanValue() string { return q.fetchPlan }

func (q *SelectQuery) Token(name string) []string {
	switch name {
	case "Target":
		return q.targets
	case "Where":
		return renderConditions(q.conditions)
	case "OrderBy":
		out := make([]string, 0, len(q.orders))
		for _, o := range q.orders {
			if o.Desc {
				out = append(out, o.Field+" DESC")
			} else {
				out = append(out, o.Field+" ASC")
			}
		}
		return out
	case "Skip":
		if q.skip > 0 {
			return []string{strconv.Itoa(q.skip)}
		}
	case "Limit":
		if q.limit >= 0 {
			return []string{strconv.Itoa(q.limit)}
		}
	case "FetchPlan":
		if q.fetchPlan != "" {
			return []string{q.fetchPlan}
		}
	}
	return nil
}

func (q *SelectQuery) String() string {
	var b strings.Builder
	b.WriteString("SELECT FROM ")
	b.WriteString(renderTarget(q.targets))
	if where := q.Token("Where"); len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if order := q.Token("OrderBy"); len(order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if skip := q.Token("Skip"); len(skip) > 0 {
		b.WriteString(" SKIP " + skip[0])
	}
	if limit := q.Token("Limit"); len(limit) > 0 {
		b.WriteString(" LIMIT " + limit[0])
	}
	if plan := q.Token("FetchPlan"); len(plan) > 0 {
		b.WriteString(" FETCHPLAN " + plan[0])
	}
	return b.String()
}

func (q *SelectQuery) Validate() error {
	if err := validateTargets(KindSelect, q.targets); err != nil {
		return err
	}
	if err := validateConditions(q.conditions); err != nil {
		return err
	}
	if q.skip < 0 {
		return fmt.Errorf("%w: negative skip", models.ErrInvalidQuery)
	}
	for _, o := range q.orders {
		if strings.TrimSpace(o.Field) == "" {
			return fmt.Errorf("%w: order by without field", models.ErrInvalidQuery)
		}
	}
	if _, err := fetchplan.Parse(q.fetchPlan); err != nil {
		return err
	}
	return nil
}
