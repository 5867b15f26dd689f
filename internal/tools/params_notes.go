package tools

import (
	"encoding/json"
	"time"

	"github.com/erauner12/notebridge/internal/noteerr"
	"github.com/erauner12/notebridge/internal/patch"
)

const dateLayout = "2006-01-02"

// ListNotesParams are the decoded arguments of list_notes with
// defaulting applied in Normalize.
type ListNotesParams struct {
	Query        string   `json:"query,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TrashStatus  string   `json:"trash_status,omitempty"`
	DateBefore   string   `json:"date_before,omitempty"`
	DateAfter    string   `json:"date_after,omitempty"`
	SortBy       string   `json:"sort_by,omitempty"`
	SortOrder    string   `json:"sort_order,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Page         int      `json:"page,omitempty"`
	PreviewLines int      `json:"preview_lines,omitempty"`
}

// Normalize applies defaults and validates ranges.
func (p *ListNotesParams) Normalize() error {
	if p.TrashStatus == "" {
		p.TrashStatus = "active"
	}
	switch p.TrashStatus {
	case "active", "trashed", "any":
	default:
		return noteerr.Validationf("trash_status must be one of active, trashed, any: got %q", p.TrashStatus)
	}

	if p.SortBy == "" {
		p.SortBy = "modified_at"
	}
	if p.SortBy != "modified_at" && p.SortBy != "created_at" {
		return noteerr.Validationf("sort_by must be modified_at or created_at: got %q", p.SortBy)
	}

	if p.SortOrder == "" {
		p.SortOrder = "DESC"
	}
	if p.SortOrder != "ASC" && p.SortOrder != "DESC" {
		return noteerr.Validationf("sort_order must be ASC or DESC: got %q", p.SortOrder)
	}

	if p.Limit == 0 {
		p.Limit = 20
	}
	if p.Limit < 1 || p.Limit > 100 {
		return noteerr.Validationf("limit must be between 1 and 100: got %d", p.Limit)
	}

	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return noteerr.Validationf("page must be >= 1: got %d", p.Page)
	}

	if p.PreviewLines == 0 {
		p.PreviewLines = 3
	}
	if p.PreviewLines < 1 || p.PreviewLines > 20 {
		return noteerr.Validationf("preview_lines must be between 1 and 20: got %d", p.PreviewLines)
	}

	if p.DateBefore != "" {
		if _, err := time.Parse(dateLayout, p.DateBefore); err != nil {
			return noteerr.Validationf("date_before must be YYYY-MM-DD: got %q", p.DateBefore)
		}
	}
	if p.DateAfter != "" {
		if _, err := time.Parse(dateLayout, p.DateAfter); err != nil {
			return noteerr.Validationf("date_after must be YYYY-MM-DD: got %q", p.DateAfter)
		}
	}
	return nil
}

// GetNoteParams are the decoded arguments of get_note.
type GetNoteParams struct {
	ID             string   `json:"id,omitempty"`
	IDs            []string `json:"ids,omitempty"`
	LocalVersion   *int     `json:"local_version,omitempty"`
	RangeLineStart *int     `json:"range_line_start,omitempty"`
	RangeLineCount *int     `json:"range_line_count,omitempty"`
}

// EffectiveIDs merges the single and batch forms.
func (p *GetNoteParams) EffectiveIDs() []string {
	if p.ID != "" {
		return append([]string{p.ID}, p.IDs...)
	}
	return p.IDs
}

func (p *GetNoteParams) Validate() error {
	ids := p.EffectiveIDs()
	if len(ids) == 0 {
		return noteerr.Validation("id or ids is required")
	}
	if len(ids) > 20 {
		return noteerr.Validationf("at most 20 ids per request: got %d", len(ids))
	}
	if len(ids) > 1 {
		if p.LocalVersion != nil {
			return noteerr.Validation("local_version applies only to single-id requests")
		}
		if p.RangeLineStart != nil || p.RangeLineCount != nil {
			return noteerr.Validation("line ranging applies only to single-id requests")
		}
	}
	if p.LocalVersion != nil && *p.LocalVersion < 1 {
		return noteerr.Validationf("local_version must be >= 1: got %d", *p.LocalVersion)
	}
	if p.RangeLineStart != nil && *p.RangeLineStart < 1 {
		return noteerr.Validationf("range_line_start must be >= 1: got %d", *p.RangeLineStart)
	}
	if p.RangeLineCount != nil && *p.RangeLineCount < 0 {
		return noteerr.Validationf("range_line_count must be >= 0: got %d", *p.RangeLineCount)
	}
	if p.RangeLineCount != nil && p.RangeLineStart == nil {
		return noteerr.Validation("range_line_count requires range_line_start")
	}
	return nil
}

// SaveNoteParams are the decoded arguments of save_note.
type SaveNoteParams struct {
	ID            string     `json:"id,omitempty"`
	LocalVersion  *int       `json:"local_version,omitempty"`
	ServerVersion *int       `json:"server_version,omitempty"`
	Text          *string    `json:"text,omitempty"`
	TextPatch     []patch.Op `json:"text_patch,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Trash         *bool      `json:"trash,omitempty"`
}

func (p *SaveNoteParams) Validate() error {
	if p.Text != nil && len(p.TextPatch) > 0 {
		return noteerr.Validation("text and text_patch are mutually exclusive")
	}
	if p.ID == "" && p.Text == nil && len(p.TextPatch) == 0 {
		return noteerr.Validation("a new note requires text or text_patch")
	}
	if p.ID != "" && p.LocalVersion == nil {
		return noteerr.Validation("local_version is required when id is present")
	}
	if p.LocalVersion != nil && *p.LocalVersion < 1 {
		return noteerr.Validationf("local_version must be >= 1: got %d", *p.LocalVersion)
	}
	for _, op := range p.TextPatch {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	if len(p.Tags) > 100 {
		return noteerr.Validationf("at most 100 tags: got %d", len(p.Tags))
	}
	for _, tag := range p.Tags {
		if len(tag) < 1 || len(tag) > 100 {
			return noteerr.Validationf("each tag must be 1-100 bytes: got %d bytes", len(tag))
		}
	}
	return nil
}

// ManageNotesParams are the decoded arguments of manage_notes.
type ManageNotesParams struct {
	Action       string `json:"action"`
	ID           string `json:"id,omitempty"`
	LocalVersion *int   `json:"local_version,omitempty"`
}

func (p *ManageNotesParams) Validate() error {
	switch p.Action {
	case "get_stats", "reset_cache":
		return nil
	case "trash", "untrash", "delete_permanently":
		if p.ID == "" {
			return noteerr.Validationf("action %q requires id", p.Action)
		}
		if p.Action != "delete_permanently" && p.LocalVersion == nil {
			return noteerr.Validationf("action %q requires local_version", p.Action)
		}
		if p.LocalVersion != nil && *p.LocalVersion < 1 {
			return noteerr.Validationf("local_version must be >= 1: got %d", *p.LocalVersion)
		}
		return nil
	default:
		return noteerr.Validationf("unknown action %q", p.Action)
	}
}

// decodeParams unmarshals raw tool arguments into params.
func decodeParams(raw json.RawMessage, params any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return noteerr.Validationf("invalid parameters: %v", err)
	}
	return nil
}
