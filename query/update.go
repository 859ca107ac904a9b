package query

import (
	"fmt"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// UpdateCommand changes fields of the records matching its conditions.
type UpdateCommand struct {
	target      string
	assignments []Assignment
	conditions  []Condition
	returning   Returning
}

// Update targets a class or a single RID.
func Update(target string) *UpdateCommand {
	return &UpdateCommand{target: normalizeTarget(target)}
}

func (c *UpdateCommand) Set(values map[string]any) *UpdateCommand {
	c.assignments = assignmentsFromMap(values)
	return c
}

func (c *UpdateCommand) SetField(field string, value any) *UpdateCommand {
	c.assignments = append(c.assignments, Assignment{Field: field, Value: value})
	return c
}

func (c *UpdateCommand) Where(field string, op Operator, value any) *UpdateCommand {
	c.conditions = append(c.conditions, NewCondition(field, op, value))
	return c
}

func (c *UpdateCommand) Return(r Returning) *UpdateCommand {
	c.returning = r
	return c
}

func (c *UpdateCommand) Kind() Kind { return KindUpdate }
func (c *UpdateCommand) Target() string { return c.target }
func (c *UpdateCommand) Assignments() []Assignment { return c.assignments }
func (c *UpdateCommand) Conditions() []Condition { return c.conditions }
func (c *UpdateCommand) Returning() Returning { return c.returning }

func (c *UpdateCommand) Token(name string) []string {
	switch name {
	case "Target":
		if c.target != "" {
			return []string{c.target}
		}
	case "Set":
		return renderAssignments(c.assignments)
	case "Where":
		return renderConditions(c.conditions)
	case "Return":
		if c.returning == ReturnCount {
			return []string{"COUNT"}
		}
	}
	return nil
}

func (c *UpdateCommand) String() string {
	var b strings.Builder
	b.WriteString("UPDATE " + c.target + " SET " + strings.Join(c.Token("Set"), ", "))
	if where := c.Token("Where"); len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if ret := c.Token("Return"); len(ret) > 0 {
		b.WriteString(" RETURN " + ret[0])
	}
	return b.String()
}

func (c *UpdateCommand) Validate() error {
	if err := validateTargets(KindUpdate, []string{c.target}); err != nil {
		return err
	}
	if len(c.assignments) == 0 {
		return fmt.Errorf("%w: update of %s sets no field", models.ErrVoidDocument, c.target)
	}
	return validateConditions(c.conditions)
}
