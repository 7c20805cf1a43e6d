package model

import (
	"fmt"
	"strings"
)

// SchemaMismatchError reports a snapshot that does not carry exactly the fixed field set.
type SchemaMismatchError struct {
	Anime   int
	Got     int
	Want    int
	Unknown string
}

func (e *SchemaMismatchError) Error() string {
	if e.Unknown != "" {
		return fmt.Sprintf("anime %d: unknown statistics field %q", e.Anime, e.Unknown)
	}
	return fmt.Sprintf("anime %d: got %d statistics fields, want %d", e.Anime, e.Got, e.Want)
}

// IncompleteEntryError reports an entry missing its id, url or title.
type IncompleteEntryError struct {
	ID      int
	URL     string
	Missing []string
}

func (e *IncompleteEntryError) Error() string {
	return fmt.Sprintf("entry %d (%s) is missing %s", e.ID, e.URL, strings.Join(e.Missing, ", "))
}
