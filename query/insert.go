package query

import (
	"fmt"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// InsertCommand creates one record.
type InsertCommand struct {
	class       string
	assignments []Assignment
}

func Insert(class string) *InsertCommand {
	return &InsertCommand{class: class}
}

// Set replaces the field values, rendered in key order.
func (c *InsertCommand) Set(values map[string]any) *InsertCommand {
	c.assignments = assignmentsFromMap(values)
	return c
}

// SetField appends a single value.
func (c *InsertCommand) SetField(field string, value any) *InsertCommand {
	c.assignments = append(c.assignments, Assignment{Field: field, Value: value})
	return c
}

func (c *InsertCommand) Kind() Kind { return KindInsert }
func (c *InsertCommand) Class() string { return c.class }
func (c *InsertCommand) Assignments() []Assignment { return c.assignments }

func (c *InsertCommand) Token(name string) []string {
	switch name {
	case "Target", "Class":
		if c.class != "" {
			return []string{c.class}
		}
	case "Set":
		return renderAssignments(c.assignments)
	}
	return nil
}

func (c *InsertCommand) String() string {
	return "INSERT INTO " + c.class + " SET " + strings.Join(c.Token("Set"), ", ")
}

func (c *InsertCommand) Validate() error {
	if strings.TrimSpace(c.class) == "" {
		return fmt.Errorf("%w: insert without class", models.ErrInvalidQuery)
	}
	if len(c.assignments) == 0 {
		return fmt.Errorf("%w: insert into %s without values", models.ErrVoidDocument, c.class)
	}
	return nil
}
