package utils

import (
	"fmt"
	"regexp"
)

// notebookIDRegex accepts ids that are safe to splice into an API URL
// path. Gist ids are hex strings, but the format is not documented as
// stable, so anything alphanumeric with inner dashes and underscores
// passes.
var notebookIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]*$`)

// ValidateNotebookID validates a notebook document id
func ValidateNotebookID(id string) error {
	if id == "" {
		return fmt.Errorf("notebook id is required")
	}

	if len(id) > 128 {
		return fmt.Errorf("notebook id too long: %d characters", len(id))
	}

	if !notebookIDRegex.MatchString(id) {
		return fmt.Errorf("invalid notebook id format: %s", id)
	}

	return nil
}
