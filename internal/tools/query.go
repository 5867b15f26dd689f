package tools

import (
	"strings"
	"time"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// listFilter is the fully resolved filter set for a list request, after
// merging inline query tokens with the structured parameters.
type listFilter struct {
	FTSTerm        string
	Tags           []string
	ModifiedBefore int64 // unix seconds, 0 = unset
	ModifiedAfter  int64
}

// parseQueryTokens splits a free-text query into filter tokens and the
// residual full-text term. Recognized tokens: tag:NAME, before:YYYY-MM-DD,
// after:YYYY-MM-DD. Inline tags union with the tags parameter; inline
// date bounds merge with the structured ones by taking the tighter bound
// (minimum for before, maximum for after). A before date covers through
// the end of the named UTC day; an after date starts at its beginning.
func parseQueryTokens(p *ListNotesParams) (*listFilter, error) {
	f := &listFilter{}

	seen := make(map[string]bool)
	addTag := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		f.Tags = append(f.Tags, t)
	}
	for _, t := range p.Tags {
		addTag(t)
	}

	if p.DateBefore != "" {
		ts, err := endOfDay(p.DateBefore)
		if err != nil {
			return nil, noteerr.Validationf("date_before must be YYYY-MM-DD: got %q", p.DateBefore)
		}
		f.ModifiedBefore = ts
	}
	if p.DateAfter != "" {
		ts, err := startOfDay(p.DateAfter)
		if err != nil {
			return nil, noteerr.Validationf("date_after must be YYYY-MM-DD: got %q", p.DateAfter)
		}
		f.ModifiedAfter = ts
	}

	var rest []string
	for _, tok := range strings.Fields(p.Query) {
		switch {
		case strings.HasPrefix(tok, "tag:"):
			addTag(strings.TrimPrefix(tok, "tag:"))

		case strings.HasPrefix(tok, "before:"):
			ts, err := endOfDay(strings.TrimPrefix(tok, "before:"))
			if err != nil {
				return nil, noteerr.Validationf("invalid before: token %q, want before:YYYY-MM-DD", tok)
			}
			if f.ModifiedBefore == 0 || ts < f.ModifiedBefore {
				f.ModifiedBefore = ts
			}

		case strings.HasPrefix(tok, "after:"):
			ts, err := startOfDay(strings.TrimPrefix(tok, "after:"))
			if err != nil {
				return nil, noteerr.Validationf("invalid after: token %q, want after:YYYY-MM-DD", tok)
			}
			if ts > f.ModifiedAfter {
				f.ModifiedAfter = ts
			}

		default:
			rest = append(rest, tok)
		}
	}
	f.FTSTerm = strings.Join(rest, " ")

	return f, nil
}

// endOfDay returns the first instant after the named UTC day, so a
// strict < comparison still includes the whole day.
func endOfDay(date string) (int64, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, err
	}
	return t.Add(24 * time.Hour).Unix(), nil
}

func startOfDay(date string) (int64, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
