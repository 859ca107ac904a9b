package query

import (
	"fmt"
	"strings"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Permissions accepted by GRANT and REVOKE.
const (
	PermissionNone   = "NONE"
	PermissionCreate = "CREATE"
	PermissionRead   = "READ"
	PermissionUpdate = "UPDATE"
	PermissionDelete = "DELETE"
	PermissionAll    = "ALL"
)

// CredentialCommand grants or revokes a permission on a resource to a role.
type CredentialCommand struct {
	kind       Kind
	permission string
	resource   string
	role       string
}

// Grant starts "GRANT permission ON resource TO role".
func Grant(permission string) *CredentialCommand {
	return &CredentialCommand{kind: KindGrant, permission: strings.ToUpper(permission)}
}

// Revoke starts "REVOKE permission ON resource FROM role".
func Revoke(permission string) *CredentialCommand {
	return &CredentialCommand{kind: KindRevoke, permission: strings.ToUpper(permission)}
}

func (c *CredentialCommand) SetPermission(permission string) *CredentialCommand {
	c.permission = strings.ToUpper(permission)
	return c
}

func (c *CredentialCommand) On(resource string) *CredentialCommand {
	c.resource = resource
	return c
}

func (c *CredentialCommand) To(role string) *CredentialCommand {
	c.role = role
	return c
}

// From is the REVOKE spelling of To.
func (c *CredentialCommand) From(role string) *CredentialCommand {
	return c.To(role)
}

func (c *CredentialCommand) Kind() Kind { return c.kind }
func (c *CredentialCommand) Permission() string { return c.permission }
func (c *CredentialCommand) Resource() string { return c.resource }
func (c *CredentialCommand) Role() string { return c.role }

func (c *CredentialCommand) Token(name string) []string {
	var v string
	switch name {
	case "Permission":
		v = c.permission
	case "Resource":
		v = c.resource
	case "Role":
		v = c.role
	}
	if v == "" {
		return nil
	}
	return []string{v}
}

func (c *CredentialCommand) String() string {
	if c.kind == KindRevoke {
		return fmt.Sprintf("REVOKE %s ON %s FROM %s", c.permission, c.resource, c.role)
	}
	return fmt.Sprintf("GRANT %s ON %s TO %s", c.permission, c.resource, c.role)
}

func (c *CredentialCommand) Validate() error {
	switch c.permission {
	case PermissionNone, PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete, PermissionAll:
	default:
		return fmt.Errorf("%w: unknown permission %q", models.ErrInvalidQuery, c.permission)
	}
	if c.resource == "" {
		return fmt.Errorf("%w: %s without resource", models.ErrInvalidQuery, c.kind)
	}
	if c.role == "" {
		return fmt.Errorf("%w: %s without role", models.ErrInvalidQuery, c.kind)
	}
	return nil
}
