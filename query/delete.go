package query

import "strings"

// DeleteCommand removes the records matching its conditions.
type DeleteCommand struct {
	target     string
	conditions []Condition
	returning  Returning
}

// Delete targets a class or a single RID.
func Delete(target string) *DeleteCommand {
	return &DeleteCommand{target: normalizeTarget(target)}
}

func (c *DeleteCommand) Where(field string, op Operator, value any) *DeleteCommand {
	c.conditions = append(c.conditions, NewCondition(field, op, value))
	return c
}

func (c *DeleteCommand) Return(r Returning) *DeleteCommand {
	c.returning = r
	return c
}

func (c *DeleteCommand) Kind() Kind { return KindDelete }
func (c *DeleteCommand) Target() string { return c.target }
func (c *DeleteCommand) Conditions() []Condition { return c.conditions }
func (c *DeleteCommand) Returning() Returning { return c.returning }

func (c *DeleteCommand) Token(name string) []string {
	switch name {
	case "Target":
		if c.target != "" {
			return []string{c.target}
		}
	case "Where":
		return renderConditions(c.conditions)
	case "Return":
		if c.returning == ReturnCount {
			return []string{"COUNT"}
		}
	}
	return nil
}

func (c *DeleteCommand) String() string {
	var b strings.Builder
	b.WriteString("DELETE FROM " + c.target)
	if where := c.Token("Where"); len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if ret := c.Token("Return"); len(ret) > 0 {
		b.WriteString(" RETURN " + ret[0])
	}
	return b.String()
}

func (c *DeleteCommand) Validate() error {
	if err := validateTargets(KindDelete, []string{c.target}); err != nil {
		return err
	}
	return validateConditions(c.conditions)
}
