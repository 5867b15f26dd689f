package tools

// Common JSON Schema building blocks

// StringSchema creates a JSON schema for a string field
func StringSchema(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// IntegerSchema creates a JSON schema for an integer field with optional min/max
func IntegerSchema(description string, min, max *int) map[string]any {
	schema := map[string]any{
		"type":        "integer",
		"description": description,
	}
	if min != nil {
		schema["minimum"] = *min
	}
	if max != nil {
		schema["maximum"] = *max
	}
	return schema
}

// BooleanSchema creates a JSON schema for a boolean field
func BooleanSchema(description string) map[string]any {
	return map[string]any{
		"type":        "boolean",
		"description": description,
	}
}

// EnumSchema creates a JSON schema for an enum field
func EnumSchema(description string, values []string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// ArraySchema creates a JSON schema for an array field
func ArraySchema(description string, items map[string]any) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       items,
	}
}

// DateSchema creates a JSON schema for a YYYY-MM-DD date string
func DateSchema(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"pattern":     `^\d{4}-\d{2}-\d{2}$`,
		"description": description,
	}
}

// BuildSchema creates a complete JSON schema object with properties and required fields
func BuildSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func patchOpSchema() map[string]any {
	one := 1
	return map[string]any{
		"type":        "object",
		"description": "One line-addressed edit",
		"properties": map[string]any{
			"op":          EnumSchema("Edit kind", []string{"add", "mod", "del"}),
			"line_number": IntegerSchema("1-indexed target line", &one, nil),
			"value":       StringSchema("New line content (required for add and mod)"),
		},
		"required": []string{"op", "line_number"},
	}
}

// ListNotesSchema is the input schema for list_notes.
func ListNotesSchema() map[string]any {
	min1, max100, max20 := 1, 100, 20
	return BuildSchema(map[string]any{
		"query":         StringSchema("Free-text search. Supports tag:NAME, before:YYYY-MM-DD, after:YYYY-MM-DD tokens; the rest is matched full-text"),
		"tags":          ArraySchema("Only notes carrying every listed tag", StringSchema("Tag name")),
		"trash_status":  EnumSchema("Filter by trash state", []string{"active", "trashed", "any"}),
		"date_before":   DateSchema("Only notes modified before this UTC date"),
		"date_after":    DateSchema("Only notes modified after this UTC date"),
		"sort_by":       EnumSchema("Sort column", []string{"modified_at", "created_at"}),
		"sort_order":    EnumSchema("Sort direction", []string{"ASC", "DESC"}),
		"limit":         IntegerSchema("Page size (1-100, default 20)", &min1, &max100),
		"page":          IntegerSchema("1-indexed page", &min1, nil),
		"preview_lines": IntegerSchema("Lines of preview text per note (1-20, default 3)", &min1, &max20),
	}, nil)
}

// GetNoteSchema is the input schema for get_note.
func GetNoteSchema() map[string]any {
	one, zero := 1, 0
	return BuildSchema(map[string]any{
		"id":               StringSchema("Note identifier. Unknown ids fall back to a full-text lookup"),
		"ids":              ArraySchema("Batch of note identifiers (max 20)", StringSchema("Note identifier")),
		"local_version":    IntegerSchema("Pin to an exact local version (single-id requests only)", &one, nil),
		"range_line_start": IntegerSchema("First line of a text slice, 1-indexed (single-id requests only)", &one, nil),
		"range_line_count": IntegerSchema("Slice length; 0 means to end of note", &zero, nil),
	}, nil)
}

// SaveNoteSchema is the input schema for save_note.
func SaveNoteSchema() map[string]any {
	one := 1
	return BuildSchema(map[string]any{
		"id":             StringSchema("Note to update; omit to create a new note"),
		"local_version":  IntegerSchema("Expected local version of the note (required with id)", &one, nil),
		"server_version": IntegerSchema("Base remote version for optimistic concurrency", nil, nil),
		"text":           StringSchema("Full replacement text (mutually exclusive with text_patch)"),
		"text_patch":     ArraySchema("Line edits applied to the current text (mutually exclusive with text)", patchOpSchema()),
		"tags":           ArraySchema("Replacement tag list", StringSchema("Tag name")),
		"trash":          BooleanSchema("Move to or out of trash"),
	}, nil)
}

// ManageNotesSchema is the input schema for manage_notes.
func ManageNotesSchema() map[string]any {
	one := 1
	return BuildSchema(map[string]any{
		"action": EnumSchema("Management action", []string{
			"get_stats", "reset_cache", "trash", "untrash", "delete_permanently",
		}),
		"id":            StringSchema("Target note (required for trash, untrash, delete_permanently)"),
		"local_version": IntegerSchema("Expected local version of the target note", &one, nil),
	}, []string{"action"})
}
