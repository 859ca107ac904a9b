package database

import (
	"context"
	"fmt"
)

// Index is a declared property index.
type Index struct {
	Name     string
	Class    string
	Property string
	Type     string
}

// Permission is a role's right on a resource.
type Permission struct {
	Role       string
	Resource   string
	Permission string
}

// ==================== INDEXES ====================

// CreateIndex reports false when an index with that name already exists.
func (r *Repository) CreateIndex(ctx context.Context, idx Index) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO indexes (name, class, property, type) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, idx.Name, idx.Class, idx.Property, idx.Type)
	if err != nil {
		return false, fmt.Errorf("failed to create index %s: %w", idx.Name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DropIndex reports false when no such index existed.
func (r *Repository) DropIndex(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to drop index %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IndexesOf lists the indexes declared on class.
func (r *Repository) IndexesOf(ctx context.Context, class string) ([]Index, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, class, property, type FROM indexes WHERE class = ? ORDER BY name`, class)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Class, &idx.Property, &idx.Type); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// ==================== PERMISSIONS ====================

func (r *Repository) Grant(ctx context.Context, p Permission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (role, resource, permission) VALUES (?, ?, ?)
		ON CONFLICT(role, resource, permission) DO NOTHING
	`, p.Role, p.Resource, p.Permission)
	if err != nil {
		return fmt.Errorf("failed to grant %s on %s to %s: %w", p.Permission, p.Resource, p.Role, err)
	}
	return nil
}

// Revoke reports false when the permission was not granted.
func (r *Repository) Revoke(ctx context.Context, p Permission) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM permissions WHERE role = ? AND resource = ? AND permission = ?
	`, p.Role, p.Resource, p.Permission)
	if err != nil {
		return false, fmt.Errorf("failed to revoke %s on %s from %s: %w", p.Permission, p.Resource, p.Role, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Permissions lists the rights granted to role.
func (r *Repository) Permissions(ctx context.Context, role string) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, resource, permission FROM permissions WHERE role = ? ORDER BY resource, permission
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Role, &p.Resource, &p.Permission); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
