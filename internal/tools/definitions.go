package tools

// RegisterAllTools wires the four note tools into the registry in the
// order they are advertised by tools/list.
func RegisterAllTools(registry *Registry) {
	registry.MustRegister(ToolDefinition{
		Name: "list_notes",
		Description: "List and search notes. Supports full-text search with tag:, " +
			"before: and after: query tokens, tag and trash filters, date bounds, " +
			"sorting and pagination. Returns previews, not full text.",
		InputSchema: ListNotesSchema(),
	}, HandleListNotes)

	registry.MustRegister(ToolDefinition{
		Name: "get_note",
		Description: "Fetch one note (or up to 20 by id). Single-id requests support " +
			"version pinning and line-range slicing; an unknown id falls back to a " +
			"full-text lookup.",
		InputSchema: GetNoteSchema(),
	}, HandleGetNote)

	registry.MustRegister(ToolDefinition{
		Name: "save_note",
		Description: "Create or update a note. Updates require id plus local_version " +
			"and take either full replacement text or a list of line patches. " +
			"Conflicting saves return an error with a resolution hint.",
		InputSchema: SaveNoteSchema(),
	}, HandleSaveNote)

	registry.MustRegister(ToolDefinition{
		Name: "manage_notes",
		Description: "Maintenance actions: get_stats, reset_cache, trash, untrash, " +
			"delete_permanently.",
		InputSchema: ManageNotesSchema(),
	}, HandleManageNotes)
}
