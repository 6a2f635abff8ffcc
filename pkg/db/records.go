// Package db defines the audit records persisted for after-the-fact
// review. postgres.DB implements AuditStore; when no DSN is configured
// the application runs without one.
package db

import (
	"context"
	"time"
)

// StatusChange records one presence transition.
type StatusChange struct {
	ID        string
	Person    string
	From      string
	To        string
	ChangedAt time.Time
}

// ShiftSwap records one executed swap, cells encoded as references.
type ShiftSwap struct {
	ID           string
	Requester    string
	Counterparty string
	GaveCell     string
	TookCell     string
	ExecutedAt   time.Time
}

// AuditStore defines the interface for audit database operations
type AuditStore interface {
	InsertStatusChange(ctx context.Context, change *StatusChange) error
	InsertShiftSwap(ctx context.Context, swap *ShiftSwap) error
	RecentStatusChanges(ctx context.Context, person string, limit int) ([]StatusChange, error)
}
