// Package editor provides text completion for the notebook editor. An
// AI-backed completer runs first and declines whenever it cannot serve;
// a static markdown completer closes the chain so completion always
// produces an answer.
package editor

const (
	// ChannelComplete proposes continuations for the text being edited
	ChannelComplete = "editor:complete"
)

// DefaultSuggestionLimit caps the suggestions a completer returns when
// the request does not say
const DefaultSuggestionLimit = 5

// Completion is the payload driven through the complete channel. Text is
// the document up to the cursor; the serving handler fills Suggestions.
type Completion struct {
	Text        string
	Limit       int
	Suggestions []string
}
