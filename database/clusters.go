package database

import (
	"context"
	"database/sql"
	"fmt"
)

// First id handed out by EnsureCluster when none is given explicitly.
const firstClusterID = 9

// ==================== CLUSTERS ====================

// CreateCluster binds class to an explicit cluster id.
func (r *Repository) CreateCluster(ctx context.Context, class string, id int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO clusters (id, class) VALUES (?, ?)`, id, class)
	if err != nil {
		return fmt.Errorf("failed to create cluster %d for %s: %w", id, class, err)
	}
	return nil
}

// EnsureCluster returns the cluster of class, creating one if needed.
func (r *Repository) EnsureCluster(ctx context.Context, class string) (int, error) {
	var id int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = ensureClusterTx(ctx, tx, class)
		return err
	})
	return id, err
}

func ensureClusterTx(ctx context.Context, tx *sql.Tx, class string) (int, error) {
	var id int
	err := tx.QueryRowContext(ctx, `SELECT id FROM clusters WHERE class = ?`, class).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id) + 1, ?) FROM clusters`, firstClusterID).Scan(&id)
	if err != nil {
		return 0, err
	}
	if id < firstClusterID {
		id = firstClusterID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO clusters (id, class) VALUES (?, ?)`, id, class); err != nil {
		return 0, fmt.Errorf("failed to create cluster for %s: %w", class, err)
	}
	return id, nil
}

// ClusterOf returns the cluster id of class, or false when it has none.
func (r *Repository) ClusterOf(ctx context.Context, class string) (int, bool, error) {
	var id int
	err := r.db.QueryRowContext(ctx, `SELECT id FROM clusters WHERE class = ?`, class).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ClusterClass returns the class stored in cluster id, or "" when unknown.
func (r *Repository) ClusterClass(ctx context.Context, id int) (string, error) {
	var class string
	err := r.db.QueryRowContext(ctx, `SELECT class FROM clusters WHERE id = ?`, id).Scan(&class)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return class, err
}

// Classes lists every class with a cluster.
func (r *Repository) Classes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT class FROM clusters ORDER BY class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}
