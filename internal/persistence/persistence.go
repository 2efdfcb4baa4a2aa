// Package persistence implements the notebook storage backends. The gist
// store talks to the GitHub API; the local store keeps an offline copy in
// SQLite. Both serve the same channels, so registration order decides the
// fallback: remote first, local second.
package persistence

const (
	// ChannelAuthenticate signs a user in against a storage backend
	ChannelAuthenticate = "persistence:authenticate"

	// ChannelLoad fetches the notebook's document
	ChannelLoad = "persistence:load"

	// ChannelSave writes the notebook's document
	ChannelSave = "persistence:save"

	// ChannelChange reports an edit so a save can be scheduled
	ChannelChange = "persistence:change"
)
