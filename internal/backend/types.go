package backend

// NoteData is the note payload as stored in the remote bucket.
// Timestamps are fractional seconds since the Unix epoch, matching the
// backend's wire format.
type NoteData struct {
	Content          string   `json:"content"`
	Tags             []string `json:"tags"`
	Deleted          bool     `json:"deleted"`
	ModificationDate float64  `json:"modificationDate,omitempty"`
	CreationDate     float64  `json:"creationDate,omitempty"`
}

// IndexEntry is one row of an index page.
type IndexEntry struct {
	ID      string    `json:"id"`
	Version int       `json:"v"`
	Data    *NoteData `json:"d,omitempty"` // present only when data=true was requested
}

// IndexPage is the response of the index endpoint. Current is the
// delta-sync watermark; Mark resumes full-sync pagination and is empty
// on the last page.
type IndexPage struct {
	Entries []IndexEntry `json:"index"`
	Current string       `json:"current"`
	Mark    string       `json:"mark,omitempty"`
}

// IndexOpts selects what an index call returns.
type IndexOpts struct {
	Since string // delta watermark; empty for full sync
	Mark  string // full-sync page token
	Limit int
	Data  bool // request inline note data
}

// SaveResult is the outcome of a save: the new remote revision plus the
// note data echoed back by the server.
type SaveResult struct {
	Version int
	Data    *NoteData
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"userid"`
}
