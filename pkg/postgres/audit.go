package postgres

import (
	"context"
	"fmt"

	"github.com/omerharel/dutywatch/pkg/db"
)

// InsertStatusChange records a presence transition
func (d *DB) InsertStatusChange(ctx context.Context, change *db.StatusChange) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO status_change (id, person_name, from_status, to_status, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, change.ID, change.Person, change.From, change.To, change.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to insert status change: %w", err)
	}

	return nil
}

// InsertShiftSwap records an executed swap
func (d *DB) InsertShiftSwap(ctx context.Context, swap *db.ShiftSwap) error {
	var gave *string
	if swap.GaveCell != "" {
		gave = &swap.GaveCell
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO shift_swap (id, requester, counterparty, gave_cell, took_cell, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, swap.ID, swap.Requester, swap.Counterparty, gave, swap.TookCell, swap.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert shift swap: %w", err)
	}

	return nil
}

// RecentStatusChanges retrieves the latest transitions for one person,
// newest first.
func (d *DB) RecentStatusChanges(ctx context.Context, person string, limit int) ([]db.StatusChange, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, person_name, from_status, to_status, changed_at
		FROM status_change
		WHERE person_name = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, person, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query status changes: %w", err)
	}
	defer rows.Close()

	var changes []db.StatusChange
	for rows.Next() {
		var c db.StatusChange
		if err := rows.Scan(&c.ID, &c.Person, &c.From, &c.To, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status changes: %w", err)
	}

	return changes, nil
}
