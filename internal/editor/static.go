package editor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

// defaultTerms are the markdown constructs offered when the prefix looks
// like the start of one
var defaultTerms = []string{
	"# ",
	"## ",
	"### ",
	"- ",
	"- [ ] ",
	"- [x] ",
	"> ",
	"```",
	"---",
	"**",
	"*",
	"[",
	"![",
	"| ",
}

// StaticCompleter matches the word being typed against the document's own
// vocabulary and a fixed markdown term table. Registered last, it settles
// every completion trigger.
type StaticCompleter struct {
	terms  []string
	logger *zap.Logger
}

// NewStaticCompleter creates the fallback completer. Nil terms get the
// markdown defaults.
func NewStaticCompleter(terms []string, logger *zap.Logger) *StaticCompleter {
	if terms == nil {
		terms = defaultTerms
	}
	return &StaticCompleter{
		terms:  terms,
		logger: logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (c *StaticCompleter) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelComplete: c.handleComplete,
	}
}

func (c *StaticCompleter) handleComplete(ctx context.Context, payload interface{}) middleware.Outcome {
	comp, ok := payload.(*Completion)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	limit := comp.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	prefix := lastToken(comp.Text)
	if prefix == "" {
		comp.Suggestions = nil
		return middleware.Done(comp)
	}

	seen := make(map[string]bool)
	var suggestions []string

	// Document vocabulary first, then the term table.
	for _, word := range strings.Fields(comp.Text) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'`")
		if word == "" || word == prefix || seen[word] {
			continue
		}
		if strings.HasPrefix(word, prefix) {
			seen[word] = true
			suggestions = append(suggestions, word)
		}
	}
	for _, term := range c.terms {
		if term == prefix || seen[term] {
			continue
		}
		if strings.HasPrefix(term, prefix) {
			seen[term] = true
			suggestions = append(suggestions, term)
		}
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	comp.Suggestions = suggestions

	return middleware.Done(comp)
}

// lastToken returns the whitespace-delimited word the cursor sits in
func lastToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	// Trailing whitespace means the word is finished.
	if r := text[len(text)-1]; r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return ""
	}
	return fields[len(fields)-1]
}
