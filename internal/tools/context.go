package tools

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/erauner12/notebridge/internal/backend"
	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/syncer"
)

// Saver is the slice of the backend client the write-path tools need.
// Tests satisfy it with an in-memory fake.
type Saver interface {
	Save(ctx context.Context, id string, payload *backend.NoteData, baseVersion *int) (*backend.SaveResult, error)
}

// SyncControl is the live sync-engine accessor used by manage_notes.
type SyncControl interface {
	Status() syncer.Status
	TriggerResync()
}

// ToolContext provides shared resources for tool handlers.
type ToolContext struct {
	Logger  *zerolog.Logger
	Store   *cache.Store
	Backend Saver
	Sync    SyncControl
	Version string
}

// NewToolContext builds the context handed to every handler invocation.
func NewToolContext(logger *zerolog.Logger, store *cache.Store, saver Saver, sync SyncControl, version string) *ToolContext {
	return &ToolContext{
		Logger:  logger,
		Store:   store,
		Backend: saver,
		Sync:    sync,
		Version: version,
	}
}
