package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// ==================== RECORDS ====================

// InsertRecord stores fields under class and returns the record with its
// assigned RID. Positions are never reused within a cluster.
func (r *Repository) InsertRecord(ctx context.Context, class string, fields map[string]any) (*models.Record, error) {
	data, err := EncodeBody(fields)
	if err != nil {
		return nil, err
	}

	var rid models.RID
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		cluster, err := ensureClusterTx(ctx, tx, class)
		if err != nil {
			return err
		}
		var position int64
		if err := tx.QueryRowContext(ctx, `SELECT next_position FROM clusters WHERE id = ?`, cluster).Scan(&position); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE clusters SET next_position = ? WHERE id = ?`, position+1, cluster); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (cluster_id, position, version, body) VALUES (?, ?, 1, ?)`,
			cluster, position, data,
		); err != nil {
			return err
		}
		rid = models.RID{Cluster: cluster, Position: position}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s record: %w", class, err)
	}

	stored, err := DecodeBody(data)
	if err != nil {
		return nil, err
	}
	return &models.Record{RID: rid, Class: class, Version: 1, Fields: stored}, nil
}

// GetRecord returns nil, nil when no record exists at rid.
func (r *Repository) GetRecord(ctx context.Context, rid models.RID) (*models.Record, error) {
	var (
		class   string
		version int
		data    []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT c.class, r.version, r.body
		FROM records r JOIN clusters c ON c.id = r.cluster_id
		WHERE r.cluster_id = ? AND r.position = ?
	`, rid.Cluster, rid.Position).Scan(&class, &version, &data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields, err := DecodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rid, err)
	}
	return &models.Record{RID: rid, Class: class, Version: version, Fields: fields}, nil
}

// GetRecords returns the existing records among rids, in request order.
func (r *Repository) GetRecords(ctx context.Context, rids []models.RID) ([]*models.Record, error) {
	out := make([]*models.Record, 0, len(rids))
	for _, rid := range rids {
		rec, err := r.GetRecord(ctx, rid)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateRecord replaces the fields at rid and bumps its version. It returns
// nil, nil when the record does not exist.
func (r *Repository) UpdateRecord(ctx context.Context, rid models.RID, fields map[string]any) (*models.Record, error) {
	data, err := EncodeBody(fields)
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE records SET body = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE cluster_id = ? AND position = ?
	`, data, rid.Cluster, rid.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to update record %s: %w", rid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.GetRecord(ctx, rid)
}

// DeleteRecord reports whether a record was removed.
func (r *Repository) DeleteRecord(ctx context.Context, rid models.RID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE cluster_id = ? AND position = ?`, rid.Cluster, rid.Position)
	if err != nil {
		return false, fmt.Errorf("failed to delete record %s: %w", rid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordsOfClass returns every record of class ordered by position.
func (r *Repository) RecordsOfClass(ctx context.Context, class string) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.cluster_id, r.position, r.version, r.body
		FROM records r JOIN clusters c ON c.id = r.cluster_id
		WHERE c.class = ?
		ORDER BY r.position
	`, class)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var (
			rec  = models.Record{Class: class}
			data []byte
		)
		if err := rows.Scan(&rec.RID.Cluster, &rec.RID.Position, &rec.Version, &data); err != nil {
			return nil, err
		}
		if rec.Fields, err = DecodeBody(data); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.RID, err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
