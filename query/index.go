package query

import (
	"fmt"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Index types.
const (
	IndexUnique    = "UNIQUE"
	IndexNotUnique = "NOTUNIQUE"
	IndexFullText  = "FULLTEXT"
)

// IndexCommand creates or drops the index of one class property.
type IndexCommand struct {
	kind      Kind
	class     string
	property  string
	indexType string
}

func CreateIndex(class, property string) *IndexCommand {
	return &IndexCommand{kind: KindCreateIndex, class: class, property: property, indexType: IndexNotUnique}
}

func DropIndex(class, property string) *IndexCommand {
	return &IndexCommand{kind: KindDropIndex, class: class, property: property}
}

// Type sets the index type of a CREATE INDEX.
func (c *IndexCommand) Type(t string) *IndexCommand {
	c.indexType = strings.ToUpper(t)
	return c
}

func (c *IndexCommand) Kind() Kind { return c.kind }
func (c *IndexCommand) Class() string { return c.class }
func (c *IndexCommand) Property() string { return c.property }
func (c *IndexCommand) IndexType() string { return c.indexType }

// Name is the index name derived from class and property.
func (c *IndexCommand) Name() string {
	return c.class + "." + c.property
}

func (c *IndexCommand) Token(name string) []string {
	var v string
	switch name {
	case "Class":
		v = c.class
	case "Property":
		v = c.property
	case "Type":
		v = c.indexType
	}
	if v == "" {
		return nil
	}
	return []string{v}
}

func (c *IndexCommand) String() string {
	if c.kind == KindDropIndex {
		return "DROP INDEX " + c.Name()
	}
	return fmt.Sprintf("CREATE INDEX %s %s", c.Name(), c.indexType)
}

func (c *IndexCommand) Validate() error {
	if c.class == "" || c.property == "" {
		return fmt.Errorf("%w: index needs class and property", models.ErrInvalidQuery)
	}
	if c.kind == KindCreateIndex {
		switch c.indexType {
		case IndexUnique, IndexNotUnique, IndexFullText:
		default:
			return fmt.Errorf("%w: unknown index type %q", models.ErrInvalidQuery, c.indexType)
		}
	}
	return nil
}
