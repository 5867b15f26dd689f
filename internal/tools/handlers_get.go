package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/noteerr"
)

// NoteView is the full note representation returned by get_note and
// save_note. Range fields appear only when a slice was requested.
type NoteView struct {
	ID            string   `json:"id"`
	LocalVersion  int      `json:"local_version"`
	ServerVersion *int     `json:"server_version,omitempty"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
	ModifiedAt    int64    `json:"modified_at"`
	CreatedAt     int64    `json:"created_at"`
	Trash         bool     `json:"trash"`
	SyncDeleted   bool     `json:"sync_deleted,omitempty"`

	TextIsPartial  bool `json:"text_is_partial,omitempty"`
	RangeLineStart int  `json:"range_line_start,omitempty"`
	RangeLineCount int  `json:"range_line_count,omitempty"`
}

// GetNoteResult wraps batch responses; single-id requests return the
// NoteView directly.
type GetNoteResult struct {
	Notes []*NoteView `json:"notes"`
}

func noteView(n *cache.Note) *NoteView {
	return &NoteView{
		ID:            n.ID,
		LocalVersion:  n.LocalVersion,
		ServerVersion: n.ServerVersion,
		Text:          n.Text,
		Tags:          n.Tags,
		ModifiedAt:    n.ModifiedAt,
		CreatedAt:     n.CreatedAt,
		Trash:         n.Trash,
		SyncDeleted:   n.SyncDeleted,
	}
}

// HandleGetNote implements the get_note tool.
func HandleGetNote(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
	var p GetNoteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ids := p.EffectiveIDs()
	if len(ids) > 1 {
		out := &GetNoteResult{Notes: make([]*NoteView, 0, len(ids))}
		for _, id := range ids {
			n, err := toolCtx.Store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			out.Notes = append(out.Notes, noteView(n))
		}
		return out, nil
	}

	id := ids[0]
	var (
		n   *cache.Note
		err error
	)
	if p.LocalVersion != nil {
		n, err = toolCtx.Store.GetAtVersion(ctx, id, *p.LocalVersion)
	} else {
		n, err = toolCtx.Store.Get(ctx, id)
	}
	if err != nil {
		if !noteerr.IsCategory(err, noteerr.CategoryNotFound) || p.LocalVersion != nil {
			return nil, err
		}
		// Agents often pass a title fragment instead of an id; fall back
		// to a full-text lookup before giving up.
		n, err = searchFallback(ctx, toolCtx, id)
		if err != nil {
			return nil, err
		}
	}

	view := noteView(n)
	if p.RangeLineStart != nil {
		applyRange(view, *p.RangeLineStart, p.RangeLineCount)
	}
	return view, nil
}

func searchFallback(ctx context.Context, toolCtx *ToolContext, term string) (*cache.Note, error) {
	ids, err := toolCtx.Store.SearchIDs(ctx, term, 1)
	if err != nil || len(ids) == 0 {
		return nil, noteerr.NotFound(term)
	}
	toolCtx.Logger.Debug().Str("term", term).Str("id", ids[0]).Msg("get_note resolved via full-text fallback")
	return toolCtx.Store.Get(ctx, ids[0])
}

// applyRange slices view.Text to the requested 1-indexed line window.
// count == nil or 0 means to end of note. A start past the last line
// yields empty partial text.
func applyRange(view *NoteView, start int, count *int) {
	lines := strings.Split(view.Text, "\n")
	view.TextIsPartial = true
	view.RangeLineStart = start

	if start > len(lines) {
		view.Text = ""
		view.RangeLineCount = 0
		return
	}

	from := start - 1
	to := len(lines)
	if count != nil && *count > 0 && from+*count < to {
		to = from + *count
	}

	view.Text = strings.Join(lines[from:to], "\n")
	view.RangeLineCount = to - from
	if start == 1 && to == len(lines) {
		view.TextIsPartial = false
	}
}
