package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNotebookID(t *testing.T) {
	valid := []string{
		"aa5a315d61ae9438b18d",
		"g1",
		"my-notebook_2",
		"0abc",
	}
	for _, id := range valid {
		assert.NoError(t, ValidateNotebookID(id), "id %q should be valid", id)
	}

	invalid := []string{
		"",
		"-leading-dash",
		"_leading_underscore",
		"has space",
		"path/../traversal",
		"semi;colon",
		strings.Repeat("a", 129),
	}
	for _, id := range invalid {
		assert.Error(t, ValidateNotebookID(id), "id %q should be rejected", id)
	}
}
