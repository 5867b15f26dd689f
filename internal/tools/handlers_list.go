package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/erauner12/notebridge/internal/cache"
)

// NoteSummary is one list_notes result row.
type NoteSummary struct {
	ID            string   `json:"id"`
	LocalVersion  int      `json:"local_version"`
	ServerVersion *int     `json:"server_version,omitempty"`
	Preview       string   `json:"preview"`
	Tags          []string `json:"tags"`
	ModifiedAt    int64    `json:"modified_at"`
	CreatedAt     int64    `json:"created_at"`
	Trash         bool     `json:"trash"`
}

// ListNotesResult is the paged list_notes envelope.
type ListNotesResult struct {
	Content     []NoteSummary `json:"content"`
	TotalItems  int           `json:"total_items"`
	CurrentPage int           `json:"current_page"`
	TotalPages  int           `json:"total_pages"`
	NextPage    *int          `json:"next_page,omitempty"`
}

// HandleListNotes implements the list_notes tool.
func HandleListNotes(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
	var p ListNotesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}

	filter, err := parseQueryTokens(&p)
	if err != nil {
		return nil, err
	}

	res, err := toolCtx.Store.List(ctx, cache.ListQuery{
		FTSTerm:        filter.FTSTerm,
		Tags:           filter.Tags,
		TrashStatus:    cache.TrashStatus(p.TrashStatus),
		ModifiedBefore: filter.ModifiedBefore,
		ModifiedAfter:  filter.ModifiedAfter,
		SortBy:         p.SortBy,
		SortOrder:      p.SortOrder,
		Limit:          p.Limit,
		Page:           p.Page,
	})
	if err != nil {
		return nil, err
	}

	totalPages := res.TotalItems / p.Limit
	if res.TotalItems%p.Limit != 0 {
		totalPages++
	}

	out := &ListNotesResult{
		Content:     make([]NoteSummary, 0, len(res.Notes)),
		TotalItems:  res.TotalItems,
		CurrentPage: p.Page,
		TotalPages:  totalPages,
	}
	if p.Page < totalPages {
		next := p.Page + 1
		out.NextPage = &next
	}

	for _, n := range res.Notes {
		out.Content = append(out.Content, NoteSummary{
			ID:            n.ID,
			LocalVersion:  n.LocalVersion,
			ServerVersion: n.ServerVersion,
			Preview:       previewText(n.Text, p.PreviewLines),
			Tags:          n.Tags,
			ModifiedAt:    n.ModifiedAt,
			CreatedAt:     n.CreatedAt,
			Trash:         n.Trash,
		})
	}

	toolCtx.Logger.Debug().
		Int("total", res.TotalItems).
		Int("page", p.Page).
		Str("query", p.Query).
		Msg("list_notes")

	return out, nil
}

// previewText returns the first n lines, trimmed; empty notes read as a
// literal placeholder so agents see something addressable.
func previewText(text string, n int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "(empty note)"
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
