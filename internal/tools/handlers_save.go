package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/erauner12/notebridge/internal/backend"
	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/patch"
)

// HandleSaveNote implements the save_note tool: resolve the payload
// against the cached row, push it to the backend (conflicts propagate
// untouched), then commit the echoed result locally in one write.
func HandleSaveNote(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
	var p SaveNoteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var (
		id          string
		row         *cache.Note
		text        string
		tags        []string
		trash       bool
		baseVersion *int
		createdAt   = now.Unix()
	)

	if p.ID == "" {
		id = uuid.NewString()
		if p.Text != nil {
			text = *p.Text
		} else {
			patched, err := patch.Apply("", p.TextPatch)
			if err != nil {
				return nil, err
			}
			text = patched
		}
		tags = p.Tags
		if tags == nil {
			tags = []string{}
		}
		if p.Trash != nil {
			trash = *p.Trash
		}
	} else {
		id = p.ID
		var err error
		row, err = toolCtx.Store.GetAtVersion(ctx, id, *p.LocalVersion)
		if err != nil {
			return nil, err
		}

		switch {
		case p.Text != nil:
			text = *p.Text
		case len(p.TextPatch) > 0:
			patched, err := patch.Apply(row.Text, p.TextPatch)
			if err != nil {
				return nil, err
			}
			text = patched
		default:
			text = row.Text
		}

		tags = p.Tags
		if tags == nil {
			tags = row.Tags
		}
		trash = row.Trash
		if p.Trash != nil {
			trash = *p.Trash
		}

		baseVersion = p.ServerVersion
		if baseVersion == nil {
			baseVersion = row.ServerVersion
		}
		createdAt = row.CreatedAt
		if createdAt == 0 {
			createdAt = now.Unix()
		}
	}

	tags = cache.CanonicalTags(tags)

	payload := &backend.NoteData{
		Content:          text,
		Tags:             tags,
		Deleted:          trash,
		ModificationDate: float64(now.Unix()),
		CreationDate:     float64(createdAt),
	}

	result, err := toolCtx.Backend.Save(ctx, id, payload, baseVersion)
	if err != nil {
		return nil, err
	}

	stored := noteFromSave(id, payload, result)
	saved, err := toolCtx.Store.UpsertLocal(ctx, stored)
	if err != nil {
		return nil, err
	}

	toolCtx.Logger.Info().
		Str("id", id).
		Int("local_version", saved.LocalVersion).
		Int("server_version", result.Version).
		Msg("note saved")

	return noteView(saved), nil
}

// noteFromSave builds the row to store after a successful remote save,
// preferring the backend's echoed fields over the request payload.
func noteFromSave(id string, sent *backend.NoteData, result *backend.SaveResult) *cache.Note {
	data := sent
	if result.Data != nil {
		data = result.Data
	}

	sv := result.Version
	return &cache.Note{
		ID:            id,
		ServerVersion: &sv,
		Text:          data.Content,
		Tags:          data.Tags,
		ModifiedAt:    int64(data.ModificationDate),
		CreatedAt:     int64(data.CreationDate),
		Trash:         data.Deleted,
	}
}
