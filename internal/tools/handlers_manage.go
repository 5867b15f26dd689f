package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/erauner12/notebridge/internal/backend"
	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/noteerr"
	"github.com/erauner12/notebridge/internal/syncer"
)

// StatsResult is the get_stats response.
type StatsResult struct {
	BridgeVersion string  `json:"bridge_version"`
	GoVersion     string  `json:"go_version"`
	MemoryRSSMiB  float64 `json:"memory_rss_mib"`

	Cache         *cache.Stats  `json:"cache"`
	Sync          syncer.Status `json:"sync"`
	BackendCursor string        `json:"backend_cursor,omitempty"`
}

// AckResult acknowledges a management action.
type AckResult struct {
	Action string `json:"action"`
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// HandleManageNotes implements the manage_notes tool.
func HandleManageNotes(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
	var p ManageNotesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Action {
	case "get_stats":
		return handleGetStats(ctx, toolCtx)
	case "reset_cache":
		return handleResetCache(toolCtx)
	case "trash":
		return handleSetTrash(ctx, toolCtx, p.ID, *p.LocalVersion, true)
	case "untrash":
		return handleSetTrash(ctx, toolCtx, p.ID, *p.LocalVersion, false)
	case "delete_permanently":
		if err := toolCtx.Store.DeletePermanently(ctx, p.ID); err != nil {
			return nil, err
		}
		toolCtx.Logger.Info().Str("id", p.ID).Msg("note deleted permanently from cache")
		return &AckResult{Action: p.Action, Status: "ok", ID: p.ID}, nil
	default:
		return nil, noteerr.Internal("unreachable manage action", nil)
	}
}

func handleGetStats(ctx context.Context, toolCtx *ToolContext) (*StatsResult, error) {
	stats, err := toolCtx.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := toolCtx.Store.Meta(ctx, cache.MetaBackendCursor)
	if err != nil {
		return nil, err
	}

	return &StatsResult{
		BridgeVersion: toolCtx.Version,
		GoVersion:     runtime.Version(),
		MemoryRSSMiB:  processRSSMiB(),
		Cache:         stats,
		Sync:          toolCtx.Sync.Status(),
		BackendCursor: cursor,
	}, nil
}

// handleResetCache closes the store, deletes its files, reopens a fresh
// one and wakes the sync engine for a full resync.
func handleResetCache(toolCtx *ToolContext) (*AckResult, error) {
	toolCtx.Logger.Info().Msg("reset_cache requested")

	if err := toolCtx.Store.Reset(); err != nil {
		return nil, err
	}
	if err := toolCtx.Store.Reopen(); err != nil {
		return nil, err
	}
	toolCtx.Sync.TriggerResync()

	return &AckResult{Action: "reset_cache", Status: "ok"}, nil
}

// handleSetTrash flips the trash flag through the backend, preserving
// text and tags, then commits the result locally.
func handleSetTrash(ctx context.Context, toolCtx *ToolContext, id string, localVersion int, trash bool) (interface{}, error) {
	row, err := toolCtx.Store.GetAtVersion(ctx, id, localVersion)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Unix()
	payload := &backend.NoteData{
		Content:          row.Text,
		Tags:             cache.CanonicalTags(row.Tags),
		Deleted:          trash,
		ModificationDate: float64(now),
		CreationDate:     float64(row.CreatedAt),
	}

	result, err := toolCtx.Backend.Save(ctx, id, payload, row.ServerVersion)
	if err != nil {
		return nil, err
	}

	saved, err := toolCtx.Store.UpsertLocal(ctx, noteFromSave(id, payload, result))
	if err != nil {
		return nil, err
	}

	toolCtx.Logger.Info().Str("id", id).Bool("trash", trash).
		Int("local_version", saved.LocalVersion).Msg("trash state changed")

	return noteView(saved), nil
}

// processRSSMiB reads the resident set size from /proc/self/status,
// falling back to heap-in-use when procfs is unavailable.
func processRSSMiB() float64 {
	if f, err := os.Open("/proc/self/status"); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "VmRSS:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if kb, err := strconv.ParseFloat(fields[1], 64); err == nil {
					return kb / 1024
				}
			}
			break
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapInuse) / (1024 * 1024)
}
