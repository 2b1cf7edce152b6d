// Package storage provides durable snapshot/restore of the call registry.
package storage

import (
	"context"

	"github.com/call-scanner/internal/types"
)

// SnapshotStore persists the full address to CallRecord mapping. Save
// overwrites the previous snapshot atomically from the caller's point of
// view; Load returns the last saved mapping, or an empty mapping when none
// exists or the stored data is unreadable (corruption is logged, not fatal).
type SnapshotStore interface {
	Save(ctx context.Context, records map[string]*types.CallRecord) error
	Load(ctx context.Context) (map[string]*types.CallRecord, error)
	Close() error
}
